package profiles

// Profile describes the register map of one actuator driver model. The
// addresses ship as JSON documents so a CVD-series unit can be described
// without a code change.
type Profile struct {
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Registers Registers `json:"registers"`
	Bits      StatusBits `json:"status_bits"`
}

// Registers holds the holding-register addresses used by the driver.
type Registers struct {
	DriverInput   uint16 `json:"driver_input"`   // driver input command word
	OperationID   uint16 `json:"operation_id"`   // operation data number selection
	StatusOutput  uint16 `json:"status_output"`  // driver output status word
	AlarmMonitor  uint16 `json:"alarm_monitor"`  // current alarm code
	FeedbackPos   uint16 `json:"feedback_pos"`   // feedback position, 32 bit
	RetractVel    uint16 `json:"retract_vel"`    // return-to-origin velocity, 32 bit
}

// StatusBits are the bit masks of the driver output status word.
type StatusBits struct {
	Move     uint16 `json:"move"`
	Ready    uint16 `json:"ready"`
	InPos    uint16 `json:"in_pos"`
	Alarm    uint16 `json:"alarm"`
	HomeEnd  uint16 `json:"home_end"`
}

// Driver input command bits. Fixed across the AZ/CVD families, so they live
// in code rather than in the profile documents.
const (
	CmdStart      uint16 = 0x0008
	CmdHome       uint16 = 0x0010
	CmdStop       uint16 = 0x0020
	CmdAlarmReset uint16 = 0x0080
)
