package modbus

import (
	"encoding/binary"
	"fmt"
)

// MBAP Header (7 Bytes) + Function Code + Data
type Frame struct {
	TransactionID uint16 // 2 Bytes - Request/Response Korrelation
	ProtocolID    uint16 // 2 Bytes - Immer 0x0000 für Modbus
	Length        uint16 // 2 Bytes - Anzahl folgender Bytes
	UnitID        uint8  // 1 Byte - Slave Address
	FunctionCode  uint8  // 1 Byte - Modbus Function
	Data          []byte // Variable Länge
}

// Modbus Function Codes
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10

	// Exception responses set the high bit of the function code.
	exceptionFlag = 0x80
)

// Modbus Exception Codes
const (
	ExceptionIllegalFunction    = 0x01
	ExceptionIllegalDataAddress = 0x02
	ExceptionIllegalDataValue   = 0x03
	ExceptionServerFailure      = 0x04
)

// ExceptionError is a Modbus exception response from the slave.
type ExceptionError struct {
	FunctionCode  uint8
	ExceptionCode uint8
}

func (e *ExceptionError) Error() string {
	var reason string
	switch e.ExceptionCode {
	case ExceptionIllegalFunction:
		reason = "illegal function"
	case ExceptionIllegalDataAddress:
		reason = "illegal data address"
	case ExceptionIllegalDataValue:
		reason = "illegal data value"
	case ExceptionServerFailure:
		reason = "server failure"
	default:
		reason = fmt.Sprintf("exception 0x%02X", e.ExceptionCode)
	}
	return fmt.Sprintf("modbus exception on function 0x%02X: %s", e.FunctionCode, reason)
}

// Encode erstellt das komplette TCP Frame
func (f *Frame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // +2 für UnitID + FunctionCode

	frame := make([]byte, 7+len(f.Data)+1) // MBAP(7) + FuncCode(1) + Data

	// MBAP Header
	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID

	// PDU
	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parst ein empfangenes Frame
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &Frame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}

	if len(data) > 8 {
		frame.Data = data[8:]
	}

	if frame.FunctionCode&exceptionFlag != 0 {
		if len(frame.Data) < 1 {
			return nil, fmt.Errorf("exception response without exception code")
		}
		return nil, &ExceptionError{
			FunctionCode:  frame.FunctionCode &^ exceptionFlag,
			ExceptionCode: frame.Data[0],
		}
	}

	return frame, nil
}

// ReadHoldingRegistersRequest erstellt Request für Function Code 0x03
func ReadHoldingRegistersRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &Frame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeReadHoldingRegisters,
		Data:          data,
	}
}

// WriteSingleRegisterRequest erstellt Request für Function Code 0x06
func WriteSingleRegisterRequest(transactionID uint16, unitID uint8, addr uint16, value uint16) *Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return &Frame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeWriteSingleRegister,
		Data:          data,
	}
}

// WriteMultipleRegistersRequest erstellt Request für Function Code 0x10.
// Gebraucht für 32-Bit Werte (Position, Geschwindigkeit) über zwei Register.
func WriteMultipleRegistersRequest(transactionID uint16, unitID uint8, startAddr uint16, values []uint16) *Frame {
	data := make([]byte, 5+len(values)*2)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = uint8(len(values) * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+i*2:7+i*2], v)
	}

	return &Frame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeWriteMultipleRegisters,
		Data:          data,
	}
}

// ParseRegisterResponse parst Holding/Input Register Response
func (f *Frame) ParseRegisterResponse() ([]uint16, error) {
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := f.Data[0]
	if len(f.Data) < int(byteCount)+1 {
		return nil, fmt.Errorf("incomplete response data")
	}

	registerCount := byteCount / 2
	registers := make([]uint16, registerCount)

	for i := 0; i < int(registerCount); i++ {
		offset := 1 + (i * 2)
		registers[i] = binary.BigEndian.Uint16(f.Data[offset : offset+2])
	}

	return registers, nil
}
