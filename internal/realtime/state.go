package realtime

// State is the lifecycle state of the connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the client lifecycle.
type Status struct {
	State State
	// Attempt is the number of reconnection attempts since the last open.
	Attempt int
	// Exhausted is set once the attempt cap is reached. The client stays
	// closed until Connect is called again.
	Exhausted bool
	// Epoch counts successful opens.
	Epoch     uint64
	LastError string
}

// Label returns a short human-readable description for status displays.
func (s Status) Label() string {
	switch {
	case s.Exhausted:
		return "Disconnected"
	case s.State == StateOpen:
		return "Connected"
	case s.State == StateConnecting && s.Attempt > 0:
		return "Reconnecting"
	case s.State == StateConnecting:
		return "Connecting"
	case s.State == StateClosed && s.Attempt > 0:
		return "Waiting to reconnect"
	case s.State == StateClosing:
		return "Closing"
	default:
		return "Offline"
	}
}
