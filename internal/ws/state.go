package ws

// State is the lifecycle of one realtime channel.
// idle -> connecting -> open -> {closed | errored}
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state can only be left by opening a new channel.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}
