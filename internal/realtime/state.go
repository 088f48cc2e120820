package realtime

// State 连接状态机：Disconnected -> Connecting -> Connected；
// 连接中断回到 Connecting，Close 回到 Disconnected。
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateListener is invoked after every transition, outside the manager lock.
type StateListener func(prev, next State)
