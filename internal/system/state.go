package system

// ProcessState is the coarse lifecycle of the station process, distinct
// from the orchestrator's motion state machine.
type ProcessState int

const (
	StateInitializing ProcessState = iota
	StateRunning
	StateStopping
	StateStopped
	StateError
)

func (s ProcessState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
