package tui

import (
	"time"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/monitor"
)

type progressMsg internal.Progress

type doneMsg struct {
	report monitor.Report
	err    error
}

type stateTickMsg time.Time
