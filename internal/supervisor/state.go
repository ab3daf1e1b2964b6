package supervisor

type State int32

const (
	Discovering State = iota
	Connecting
	Connected
	LinkDown
)

func (s State) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case LinkDown:
		return "link_down"
	default:
		return "unknown"
	}
}
