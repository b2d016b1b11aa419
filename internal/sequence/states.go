package sequence

// SystemState is the station-wide state machine.
//
// Flow:
//
//	BOOT → HOMING → READY → (start) → STANDBY → RUNNING → FINISHED → READY
//	          ↑                                               ↓
//	          └──────────────────── (reset) ──────────────────┘
//
// stop forces STOPPED from standby/running/finished/ready; FAULT is entered
// whenever the actuator controller reports an error and left only through
// clear-fault.
type SystemState string

const (
	StateBoot     SystemState = "boot"
	StateHoming   SystemState = "homing"
	StateReady    SystemState = "ready"
	StateStandby  SystemState = "standby"
	StateRunning  SystemState = "running"
	StateFinished SystemState = "finished"
	StateStopped  SystemState = "stopped"
	StateFault    SystemState = "fault"
)

// Command is the shared vocabulary of every control surface: local input,
// peer broadcast and the HTTP API all reduce to one of these.
type Command string

const (
	CommandStart      Command = "start"
	CommandStop       Command = "stop"
	CommandReset      Command = "reset"
	CommandClearFault Command = "clear-fault"
)

// ParseCommand maps a wire name onto a Command.
func ParseCommand(name string) (Command, bool) {
	switch Command(name) {
	case CommandStart, CommandStop, CommandReset, CommandClearFault:
		return Command(name), true
	default:
		return "", false
	}
}

// Broadcaster fans a command out to the peer stations, best effort.
type Broadcaster interface {
	Broadcast(cmd Command)
}

// Notifier emits downstream notifications toward the playback system.
type Notifier interface {
	Notify(event string)
	NotifyError(message string)
}

// Recorder persists run history. Implementations must never block the
// caller on storage trouble.
type Recorder interface {
	RecordTransition(from, to SystemState, cause string)
	RecordRun(runID string, opID, cycle int, outcome string, durationMS int64)
}

// StationStatus is the externally visible orchestrator state.
type StationStatus struct {
	State     SystemState `json:"state"`
	Looping   bool        `json:"looping"`
	Cycle     int         `json:"cycle"`
	LastError string      `json:"last_error,omitempty"`
}
