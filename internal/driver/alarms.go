package driver

import "fmt"

// Alarm codes of the AZ-family drivers, from the vendor register reference.
var alarmTexts = map[uint16]string{
	0x10: "position deviation over",
	0x20: "overcurrent",
	0x21: "main circuit overheat",
	0x22: "overvoltage",
	0x23: "main power off",
	0x25: "low voltage",
	0x26: "motor overheat",
	0x28: "sensor error",
	0x29: "CPU peripheral circuit error",
	0x2A: "ABZO sensor communication error",
	0x30: "overload",
	0x31: "overspeed",
	0x33: "absolute position error",
	0x34: "command pulse error",
	0x41: "EEPROM error",
	0x42: "initial sensor error",
	0x43: "initial rotation error",
	0x44: "encoder EEPROM error",
	0x45: "motor combination error",
	0x4A: "homing incomplete",
	0x60: "simultaneous limit input",
	0x61: "limit sensor reverse connection",
	0x62: "homing operation error",
	0x63: "home sensor not detected",
	0x64: "TIM/ZSG/SLIT signal error",
	0x66: "hardware overtravel",
	0x67: "software overtravel",
	0x6A: "homing offset error",
	0x6D: "mechanical overtravel",
	0x70: "operation data error",
	0x71: "electronic gear setting error",
	0x72: "round setting error",
	0x81: "network bus error",
	0x82: "network module error",
	0xF0: "CPU error",
}

// AlarmText returns a human-readable message for an alarm code.
func AlarmText(code uint16) string {
	if text, ok := alarmTexts[code]; ok {
		return fmt.Sprintf("alarm 0x%02X: %s", code, text)
	}
	return fmt.Sprintf("alarm 0x%02X: unknown alarm code", code)
}
