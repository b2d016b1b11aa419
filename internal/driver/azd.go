package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/StationCore/internal/modbus"
	"github.com/KevinKickass/StationCore/internal/profiles"
	"go.uber.org/zap"
)

// homingPollInterval is how often the home-end flag is sampled while a
// homing sequence is in flight.
const homingPollInterval = 250 * time.Millisecond

// AZDriver drives one Oriental Motor AZ/CVD-family unit through a shared
// Modbus TCP client. Command bits are edge-triggered: every command write is
// followed by a zero write so the next rising edge is seen by the driver.
type AZDriver struct {
	name    string
	unitID  uint8
	client  *modbus.Client
	profile *profiles.Profile
	logger  *zap.Logger
}

func NewAZDriver(name string, unitID uint8, client *modbus.Client, profile *profiles.Profile, logger *zap.Logger) *AZDriver {
	return &AZDriver{
		name:    name,
		unitID:  unitID,
		client:  client,
		profile: profile,
		logger:  logger.With(zap.String("actuator", name), zap.Uint8("unit_id", unitID)),
	}
}

func (d *AZDriver) Connect() error {
	if err := d.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.name, err)
	}

	// Verify the unit answers before reporting success.
	if _, err := d.readStatusWord(); err != nil {
		return fmt.Errorf("unit %d not responding: %w", d.unitID, err)
	}

	d.logger.Info("Actuator driver connected")
	return nil
}

func (d *AZDriver) Close() error {
	return d.client.Close()
}

func (d *AZDriver) StartHoming(ctx context.Context, timeout time.Duration) error {
	d.logger.Info("Starting homing sequence")

	if err := d.pulseCommand(profiles.CmdHome); err != nil {
		return fmt.Errorf("homing command failed: %w", err)
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(homingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		done, err := d.HomeComplete()
		if err != nil {
			return fmt.Errorf("homing status read failed: %w", err)
		}

		fault, err := d.FaultActive()
		if err != nil {
			return fmt.Errorf("homing status read failed: %w", err)
		}
		if fault {
			code, _ := d.AlarmCode()
			return fmt.Errorf("alarm during homing: %s", AlarmText(code))
		}

		if done {
			d.logger.Info("Homing complete")
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("homing timed out after %s", timeout)
		}
	}
}

func (d *AZDriver) HomeComplete() (bool, error) {
	return d.statusBit(d.profile.Bits.HomeEnd)
}

func (d *AZDriver) StartOperation(opID int) error {
	d.logger.Info("Starting operation", zap.Int("op_id", opID))

	if err := d.client.WriteSingleRegister(d.unitID, d.profile.Registers.OperationID, uint16(opID)); err != nil {
		return fmt.Errorf("operation select failed: %w", err)
	}

	if err := d.pulseCommand(profiles.CmdStart); err != nil {
		return fmt.Errorf("start command failed: %w", err)
	}

	return nil
}

func (d *AZDriver) Stop() error {
	d.logger.Info("Issuing hardware stop")
	if err := d.pulseCommand(profiles.CmdStop); err != nil {
		return fmt.Errorf("stop command failed: %w", err)
	}
	return nil
}

func (d *AZDriver) ReturnToOrigin(velocity int) error {
	d.logger.Info("Returning to origin", zap.Int("velocity", velocity))

	if d.profile.Registers.RetractVel != 0 {
		values := []uint16{uint16(uint32(velocity) >> 16), uint16(uint32(velocity))}
		if err := d.client.WriteMultipleRegisters(d.unitID, d.profile.Registers.RetractVel, values); err != nil {
			return fmt.Errorf("retract velocity write failed: %w", err)
		}
	}

	if err := d.pulseCommand(profiles.CmdHome); err != nil {
		return fmt.Errorf("return-to-origin command failed: %w", err)
	}
	return nil
}

func (d *AZDriver) ClearFault() error {
	d.logger.Info("Clearing alarm")
	if err := d.pulseCommand(profiles.CmdAlarmReset); err != nil {
		return fmt.Errorf("alarm reset failed: %w", err)
	}
	return nil
}

func (d *AZDriver) Position() (int32, error) {
	regs, err := d.client.ReadHoldingRegisters(d.unitID, d.profile.Registers.FeedbackPos, 2)
	if err != nil {
		return 0, fmt.Errorf("position read failed: %w", err)
	}
	if len(regs) < 2 {
		return 0, fmt.Errorf("position read returned %d registers", len(regs))
	}
	return int32(uint32(regs[0])<<16 | uint32(regs[1])), nil
}

func (d *AZDriver) Moving() (bool, error) {
	return d.statusBit(d.profile.Bits.Move)
}

func (d *AZDriver) Ready() (bool, error) {
	return d.statusBit(d.profile.Bits.Ready)
}

func (d *AZDriver) AtTarget() (bool, error) {
	return d.statusBit(d.profile.Bits.InPos)
}

func (d *AZDriver) FaultActive() (bool, error) {
	return d.statusBit(d.profile.Bits.Alarm)
}

func (d *AZDriver) RunningOperation() (int, error) {
	regs, err := d.client.ReadHoldingRegisters(d.unitID, d.profile.Registers.OperationID, 1)
	if err != nil {
		return 0, fmt.Errorf("operation number read failed: %w", err)
	}
	if len(regs) < 1 {
		return 0, fmt.Errorf("operation number read returned no registers")
	}
	return int(regs[0]), nil
}

// AlarmCode reads the current alarm code from the alarm monitor register.
func (d *AZDriver) AlarmCode() (uint16, error) {
	regs, err := d.client.ReadHoldingRegisters(d.unitID, d.profile.Registers.AlarmMonitor, 1)
	if err != nil {
		return 0, fmt.Errorf("alarm read failed: %w", err)
	}
	if len(regs) < 1 {
		return 0, fmt.Errorf("alarm read returned no registers")
	}
	return regs[0], nil
}

func (d *AZDriver) readStatusWord() (uint16, error) {
	regs, err := d.client.ReadHoldingRegisters(d.unitID, d.profile.Registers.StatusOutput, 1)
	if err != nil {
		return 0, err
	}
	if len(regs) < 1 {
		return 0, fmt.Errorf("status read returned no registers")
	}
	return regs[0], nil
}

func (d *AZDriver) statusBit(mask uint16) (bool, error) {
	word, err := d.readStatusWord()
	if err != nil {
		return false, fmt.Errorf("status read failed: %w", err)
	}
	return word&mask != 0, nil
}

// pulseCommand raises a command bit and drops it again. The AZ driver input
// word reacts on the rising edge, so the zero write arms the next command.
func (d *AZDriver) pulseCommand(cmd uint16) error {
	if err := d.client.WriteSingleRegister(d.unitID, d.profile.Registers.DriverInput, cmd); err != nil {
		return err
	}
	return d.client.WriteSingleRegister(d.unitID, d.profile.Registers.DriverInput, 0)
}
