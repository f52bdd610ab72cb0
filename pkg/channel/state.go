package channel

// State describes the lifecycle of one channel.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Faulted
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}
