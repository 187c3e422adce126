package client

// State is the connection state of a Manager
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	// Failed means retries are exhausted; only Start leaves it
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Online reports whether notifications are flowing
func (s State) Online() bool { return s == Connected }

// StateChange describes one transition of the Manager
type StateChange struct {
	From    State
	To      State
	Attempt int   // reconnect attempts made so far
	Err     error // cause of a transition to Reconnecting or Failed
}
