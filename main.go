package main

import "github.com/moyu-x/carve-refinery/cmd"

func main() {
	cmd.Execute()
}
