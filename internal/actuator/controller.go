package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	HomingRequired  bool
	HomingTimeout   time.Duration
	PollInterval    time.Duration
	StartGrace      time.Duration
	CompletionLimit time.Duration
	RetractOnStop   bool
	RetractVelocity int
}

// Controller drives the units of one station through homing and one stored
// operation at a time, as a synchronized group, and reports completion
// exactly once per request.
type Controller struct {
	logger   *zap.Logger
	units    []Unit
	cfg      Config
	listener Listener

	mu            sync.Mutex
	state         State
	currentOp     int
	opMonitor     *monitor
	originMonitor *monitor
}

// monitor is one cancellable completion watch. At most one operation monitor
// and one origin monitor exist at a time; a new one supersedes the old.
type monitor struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(units []Unit, cfg Config, listener Listener, logger *zap.Logger) *Controller {
	return &Controller{
		logger:   logger,
		units:    units,
		cfg:      cfg,
		listener: listener,
		state:    StateDisconnected,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize connects every unit and homes the group. Units whose home-end
// flag survived a prior run are skipped; the rest home sequentially. A
// station with zero units goes straight to ready without touching hardware.
func (c *Controller) Initialize(ctx context.Context) error {
	c.logger.Info("Initializing actuator controller", zap.Int("units", len(c.units)))

	if len(c.units) == 0 {
		c.setState(StateReady)
		c.listener.ActuatorReady()
		return nil
	}

	for _, u := range c.units {
		if err := u.Driver.Connect(); err != nil {
			return c.fail(fmt.Sprintf("connection failed for %s: %v", u.Name, err))
		}
	}

	if c.cfg.HomingRequired {
		c.setState(StateHoming)
		if err := c.homeAll(ctx, false); err != nil {
			return c.fail(fmt.Sprintf("homing failed: %v", err))
		}
	}

	c.logger.Info("Actuator group ready")
	c.setState(StateReady)
	c.listener.ActuatorReady()
	return nil
}

// homeAll homes every unit in order. Unless force is set, units already
// reporting home-end are left alone.
func (c *Controller) homeAll(ctx context.Context, force bool) error {
	for _, u := range c.units {
		if !force {
			homed, err := u.Driver.HomeComplete()
			if err != nil {
				return fmt.Errorf("%s: %w", u.Name, err)
			}
			if homed {
				c.logger.Info("Unit already homed, skipping", zap.String("unit", u.Name))
				continue
			}
		}

		c.logger.Info("Homing unit", zap.String("unit", u.Name))
		if err := u.Driver.StartHoming(ctx, c.cfg.HomingTimeout); err != nil {
			return fmt.Errorf("%s: %w", u.Name, err)
		}
	}
	return nil
}

// StartOperation issues the numbered operation to every unit and monitors
// the group until every unit shows a moving falling edge. Rejected unless
// the controller is ready.
func (c *Controller) StartOperation(opID int) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("Cannot start operation, controller not ready",
			zap.Int("op_id", opID),
			zap.String("state", string(state)))
		return
	}
	c.state = StateRunning
	c.currentOp = opID
	c.mu.Unlock()

	for _, u := range c.units {
		if err := u.Driver.StartOperation(opID); err != nil {
			c.fail(fmt.Sprintf("start of operation %d failed for %s: %v", opID, u.Name, err))
			return
		}
	}

	m := c.startMonitor(&c.opMonitor)
	c.logger.Info("Operation started",
		zap.Int("op_id", opID),
		zap.String("run_id", m.id.String()))

	go c.watchCompletion(m, "operation", func() {
		c.setState(StateFinished)
		c.logger.Info("Operation finished",
			zap.Int("op_id", opID),
			zap.String("run_id", m.id.String()))
		c.listener.ActuatorFinished()
		c.setState(StateReady)
	})
}

// Stop is idempotent and safe from any state. The monitors are cancelled
// before the hardware stop so a stale monitor cannot fire a finished
// callback after the stop. If retract-on-stop is configured, the units are
// sent back to origin under an independent background monitor.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.cancelLocked(&c.opMonitor)
	c.cancelLocked(&c.originMonitor)
	inFault := c.state == StateFault
	c.mu.Unlock()

	for _, u := range c.units {
		if err := u.Driver.Stop(); err != nil {
			c.logger.Error("Hardware stop failed", zap.String("unit", u.Name), zap.Error(err))
		}
	}

	if !inFault {
		c.setState(StateReady)
	}

	if c.cfg.RetractOnStop && len(c.units) > 0 && !inFault {
		c.retractToOrigin()
	}
}

func (c *Controller) retractToOrigin() {
	for _, u := range c.units {
		if err := u.Driver.ReturnToOrigin(c.cfg.RetractVelocity); err != nil {
			c.logger.Error("Return-to-origin failed", zap.String("unit", u.Name), zap.Error(err))
		}
	}

	m := c.startMonitor(&c.originMonitor)
	c.logger.Info("Retracting to origin", zap.String("run_id", m.id.String()))

	// Background motion; state stays ready while the group retracts.
	go c.watchCompletion(m, "origin", func() {
		c.logger.Info("Origin retract complete", zap.String("run_id", m.id.String()))
	})
}

// ClearFault issues a fault clear to every unit. It does not change the
// controller state; recovery from fault is the orchestrator's decision once
// no fault flag remains.
func (c *Controller) ClearFault() error {
	var firstErr error
	for _, u := range c.units {
		if err := u.Driver.ClearFault(); err != nil {
			c.logger.Error("Fault clear failed", zap.String("unit", u.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", u.Name, err)
			}
		}
	}
	return firstErr
}

// FaultActive reports whether any unit still flags a fault. An unreadable
// unit counts as an error, not as fault-free.
func (c *Controller) FaultActive() (bool, error) {
	for _, u := range c.units {
		fault, err := u.Driver.FaultActive()
		if err != nil {
			return false, fmt.Errorf("%s: %w", u.Name, err)
		}
		if fault {
			return true, nil
		}
	}
	return false, nil
}

// AcknowledgeFault moves the controller back to ready after the orchestrator
// has confirmed no fault flag remains.
func (c *Controller) AcknowledgeFault() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFault {
		c.state = StateReady
	}
}

// ResetToHome re-runs the homing sequence unconditionally, for recovery.
func (c *Controller) ResetToHome(ctx context.Context) error {
	c.logger.Info("Resetting to home")
	c.setState(StateHoming)

	if err := c.homeAll(ctx, true); err != nil {
		return c.fail(fmt.Sprintf("reset homing failed: %v", err))
	}

	c.logger.Info("Reset complete, actuator group ready")
	c.setState(StateReady)
	c.listener.ActuatorReady()
	return nil
}

// UnitStatuses reads a fresh snapshot of every unit for status reporting.
func (c *Controller) UnitStatuses() []UnitStatus {
	statuses := make([]UnitStatus, 0, len(c.units))
	for _, u := range c.units {
		status := UnitStatus{Name: u.Name}
		snap, err := c.snapshot(u)
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Snapshot = snap
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Close stops all motion and disconnects every unit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelLocked(&c.opMonitor)
	c.cancelLocked(&c.originMonitor)
	c.mu.Unlock()

	for _, u := range c.units {
		if err := u.Driver.Stop(); err != nil {
			c.logger.Warn("Stop during close failed", zap.String("unit", u.Name), zap.Error(err))
		}
		if err := u.Driver.Close(); err != nil {
			c.logger.Warn("Close failed", zap.String("unit", u.Name), zap.Error(err))
		}
	}
	c.setState(StateDisconnected)
}

// watchCompletion polls the group until every unit independently satisfies
// the completion predicate, then runs onComplete exactly once.
//
// A single moving flag is not a usable completion signal on its own: it can
// read false before motion has started, and transiently false between
// segments of a multi-step operation. Per unit we therefore latch a started
// flag on the first moving sample and declare completion only on the
// falling edge afterwards. A unit that never starts within the grace window
// counts as complete, since an operation may produce no observable motion.
func (c *Controller) watchCompletion(m *monitor, kind string, onComplete func()) {
	type unitProgress struct {
		started bool
		done    bool
	}
	progress := make([]unitProgress, len(c.units))
	last := make([]MotionSnapshot, len(c.units))

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-m.ctx.Done():
			c.logger.Debug("Monitor cancelled", zap.String("kind", kind), zap.String("run_id", m.id.String()))
			return
		case <-ticker.C:
		}

		elapsed := time.Since(start)
		remaining := 0

		for i, u := range c.units {
			if progress[i].done {
				continue
			}

			snap, err := c.snapshot(u)
			if err != nil {
				c.logger.Warn("Status poll failed",
					zap.String("unit", u.Name),
					zap.Error(err))
				remaining++
				continue
			}
			last[i] = snap

			if snap.Fault {
				if m.ctx.Err() != nil {
					return
				}
				c.fail(fmt.Sprintf("fault on %s during %s: fault flag set", u.Name, kind))
				return
			}

			switch {
			case snap.Moving:
				progress[i].started = true
			case progress[i].started:
				// Falling edge: moving went true -> false.
				progress[i].done = true
			case elapsed > c.cfg.StartGrace:
				// Never observed motion inside the grace window; the
				// operation produced no visible move for this unit.
				progress[i].done = true
			}

			if !progress[i].done {
				remaining++
			}
		}

		if remaining == 0 {
			if m.ctx.Err() != nil {
				return
			}
			c.clearMonitor(m)
			onComplete()
			return
		}

		if elapsed > c.cfg.CompletionLimit {
			if m.ctx.Err() != nil {
				return
			}
			for i, u := range c.units {
				c.logger.Error("Last known status before timeout",
					zap.String("unit", u.Name),
					zap.Bool("started", progress[i].started),
					zap.Bool("moving", last[i].Moving),
					zap.Int32("position", last[i].Position))
			}
			c.fail(fmt.Sprintf("%s did not complete within %s", kind, c.cfg.CompletionLimit))
			return
		}
	}
}

func (c *Controller) snapshot(u Unit) (MotionSnapshot, error) {
	var snap MotionSnapshot
	var err error

	if snap.Moving, err = u.Driver.Moving(); err != nil {
		return snap, err
	}
	if snap.Fault, err = u.Driver.FaultActive(); err != nil {
		return snap, err
	}
	if snap.Ready, err = u.Driver.Ready(); err != nil {
		return snap, err
	}
	if snap.AtTarget, err = u.Driver.AtTarget(); err != nil {
		return snap, err
	}
	if snap.Position, err = u.Driver.Position(); err != nil {
		return snap, err
	}
	return snap, nil
}

// startMonitor installs a fresh monitor in the given slot, superseding any
// prior monitor of the same kind.
func (c *Controller) startMonitor(slot **monitor) *monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{id: uuid.New(), ctx: ctx, cancel: cancel}

	c.mu.Lock()
	if *slot != nil {
		(*slot).cancel()
	}
	*slot = m
	c.mu.Unlock()

	return m
}

func (c *Controller) cancelLocked(slot **monitor) {
	if *slot != nil {
		(*slot).cancel()
		*slot = nil
	}
}

// clearMonitor releases a monitor slot if it still holds this monitor.
func (c *Controller) clearMonitor(m *monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opMonitor == m {
		c.opMonitor = nil
	}
	if c.originMonitor == m {
		c.originMonitor = nil
	}
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// fail cancels any active monitors, enters the fault state and reports the
// cause upward. Always returns an error carrying the message.
func (c *Controller) fail(msg string) error {
	c.mu.Lock()
	c.cancelLocked(&c.opMonitor)
	c.cancelLocked(&c.originMonitor)
	c.state = StateFault
	c.mu.Unlock()

	c.logger.Error("Actuator fault", zap.String("cause", msg))
	c.listener.ActuatorError(msg)
	return fmt.Errorf("%s", msg)
}
