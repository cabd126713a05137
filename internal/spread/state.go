package spread

// State 引擎状态
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateActive
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateShutdown:
		return "shutdown"
	}
	return "unknown"
}
