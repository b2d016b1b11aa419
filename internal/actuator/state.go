package actuator

import "github.com/KevinKickass/StationCore/internal/driver"

// State is the aggregate lifecycle state across all units of a station.
// Homing and operations are always issued as a group, so one tag is enough.
type State string

const (
	StateDisconnected State = "disconnected"
	StateHoming       State = "homing"
	StateReady        State = "ready"
	StateRunning      State = "running"
	StateFinished     State = "finished"
	StateFault        State = "fault"
)

// Unit is a named handle to one physical actuator.
type Unit struct {
	Name   string
	Driver driver.Driver
}

// MotionSnapshot is one fresh read of a unit's status. It is never cached
// across poll ticks; the physical state can change between reads.
type MotionSnapshot struct {
	Moving   bool  `json:"moving"`
	Ready    bool  `json:"ready"`
	AtTarget bool  `json:"at_target"`
	Fault    bool  `json:"fault"`
	Position int32 `json:"position"`
}

// Listener receives lifecycle events from the controller. It is injected at
// construction so the controller never exists with unset callbacks.
type Listener interface {
	ActuatorReady()
	ActuatorFinished()
	ActuatorError(msg string)
}

// UnitStatus is a unit snapshot for status reporting.
type UnitStatus struct {
	Name     string         `json:"name"`
	Snapshot MotionSnapshot `json:"snapshot"`
	Error    string         `json:"error,omitempty"`
}
