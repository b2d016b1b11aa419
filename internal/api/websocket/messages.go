package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Station state messages
	MessageTypeStationState MessageType = "station_state"

	// Operation run messages
	MessageTypeRunEvent MessageType = "run_event"

	// Actuator messages
	MessageTypeActuatorError MessageType = "actuator_error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StationStateData represents a station state change
type StationStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
	Cycle    int    `json:"cycle"`
}

// RunEventData represents an operation run event
type RunEventData struct {
	RunID   string `json:"run_id"`
	OpID    int    `json:"op_id"`
	Cycle   int    `json:"cycle"`
	Outcome string `json:"outcome"`
}

// ActuatorErrorData carries a fault report to the monitoring page.
type ActuatorErrorData struct {
	Message string `json:"message"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewStationStateMessage(newState, previousState string, cycle int) Message {
	return NewMessage(MessageTypeStationState, StationStateData{
		State:    newState,
		Previous: previousState,
		Cycle:    cycle,
	})
}

func NewRunEventMessage(runID string, opID, cycle int, outcome string) Message {
	return NewMessage(MessageTypeRunEvent, RunEventData{
		RunID:   runID,
		OpID:    opID,
		Cycle:   cycle,
		Outcome: outcome,
	})
}

func NewActuatorErrorMessage(message string) Message {
	return NewMessage(MessageTypeActuatorError, ActuatorErrorData{Message: message})
}
