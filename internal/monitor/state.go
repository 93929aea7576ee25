package monitor

// State 监控会话所处的阶段
type State int

const (
	StateIdle State = iota
	StateWatching
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

const (
	ModeWatch   = "watch"
	ModeProcess = "process"
)
