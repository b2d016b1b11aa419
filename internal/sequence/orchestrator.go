package sequence

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/StationCore/internal/actuator"
	"github.com/KevinKickass/StationCore/internal/api/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	OperationID int
	LoopDelay   time.Duration
}

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evReset
	evClearFault
	evCycle
	evActuatorReady
	evActuatorFinished
	evActuatorError
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "start"
	case evStop:
		return "stop"
	case evReset:
		return "reset"
	case evClearFault:
		return "clear-fault"
	case evCycle:
		return "cycle"
	case evActuatorReady:
		return "actuator-ready"
	case evActuatorFinished:
		return "actuator-finished"
	case evActuatorError:
		return "actuator-error"
	default:
		return "unknown"
	}
}

type event struct {
	kind   eventKind
	source string
	msg    string
}

// Orchestrator translates external intent into actuator lifecycle calls,
// layers the loop policy on top of single-shot operations and mediates
// fault recovery.
//
// All entry points post typed events into one channel; a single goroutine
// drains it and is the only writer of orchestrator state. Input handlers,
// peer datagrams and HTTP requests may arrive on any goroutine.
type Orchestrator struct {
	logger     *zap.Logger
	controller *actuator.Controller
	broadcast  Broadcaster
	notifier   Notifier
	recorder   Recorder
	hub        *websocket.Hub
	cfg        Config

	events chan event
	quit   chan struct{}
	wg     sync.WaitGroup

	// Written only by the event loop; mu guards reads from other goroutines.
	mu        sync.RWMutex
	state     SystemState
	looping   bool
	cycle     int
	lastError string

	runID    uuid.UUID
	runStart time.Time
}

func NewOrchestrator(
	broadcast Broadcaster,
	notifier Notifier,
	recorder Recorder,
	hub *websocket.Hub,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		broadcast: broadcast,
		notifier:  notifier,
		recorder:  recorder,
		hub:       hub,
		cfg:       cfg,
		events:    make(chan event, 16),
		quit:      make(chan struct{}),
		state:     StateBoot,
	}
}

// AttachController wires the actuator controller. The controller takes the
// orchestrator as its listener at construction, so the two are created in
// sequence and attached before Run.
func (o *Orchestrator) AttachController(c *actuator.Controller) {
	o.controller = c
}

// Run starts the event loop. Must be called before Initialize so actuator
// callbacks raised during boot find a running loop.
func (o *Orchestrator) Run() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-o.quit:
				return
			case ev := <-o.events:
				o.dispatch(ev)
			}
		}
	}()
}

// Shutdown stops the event loop. Pending events are dropped.
func (o *Orchestrator) Shutdown() {
	close(o.quit)
	o.wg.Wait()
}

// Initialize runs the boot sequence: homing, then ready via the actuator
// listener path. Blocks until homing finishes or fails.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.logger.Info("System boot, starting initialization")
	o.transition(StateHoming, "boot")
	return o.controller.Initialize(ctx)
}

// Command posts a control command from any source into the event loop.
func (o *Orchestrator) Command(cmd Command, source string) bool {
	switch cmd {
	case CommandStart:
		return o.post(event{kind: evStart, source: source})
	case CommandStop:
		return o.post(event{kind: evStop, source: source})
	case CommandReset:
		return o.post(event{kind: evReset, source: source})
	case CommandClearFault:
		return o.post(event{kind: evClearFault, source: source})
	default:
		o.logger.Warn("Unknown command", zap.String("command", string(cmd)), zap.String("source", source))
		return false
	}
}

// Actuator listener. The controller invokes these from its own goroutines;
// they are marshaled into the event loop like every other entry point.

func (o *Orchestrator) ActuatorReady() {
	o.post(event{kind: evActuatorReady, source: "actuator"})
}

func (o *Orchestrator) ActuatorFinished() {
	o.post(event{kind: evActuatorFinished, source: "actuator"})
}

func (o *Orchestrator) ActuatorError(msg string) {
	o.post(event{kind: evActuatorError, source: "actuator", msg: msg})
}

func (o *Orchestrator) post(ev event) bool {
	select {
	case o.events <- ev:
		return true
	case <-o.quit:
		return false
	}
}

// Status returns the externally visible orchestrator state.
func (o *Orchestrator) Status() StationStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return StationStatus{
		State:     o.state,
		Looping:   o.looping,
		Cycle:     o.cycle,
		LastError: o.lastError,
	}
}

func (o *Orchestrator) dispatch(ev event) {
	o.logger.Debug("Dispatching event",
		zap.String("event", ev.kind.String()),
		zap.String("source", ev.source),
		zap.String("state", string(o.state)))

	switch ev.kind {
	case evStart:
		o.handleStart(ev)
	case evStop:
		o.handleStop(ev)
	case evReset:
		o.handleReset(ev)
	case evClearFault:
		o.handleClearFault(ev)
	case evCycle:
		o.handleCycle()
	case evActuatorReady:
		o.handleActuatorReady()
	case evActuatorFinished:
		o.handleActuatorFinished()
	case evActuatorError:
		o.handleActuatorError(ev.msg)
	}
}

func (o *Orchestrator) handleStart(ev event) {
	if o.state != StateReady {
		o.logger.Warn("Cannot start, system not ready",
			zap.String("state", string(o.state)),
			zap.String("source", ev.source))
		return
	}

	o.logger.Info("Start accepted", zap.String("source", ev.source))

	o.setLooping(true)
	o.setCycle(1)

	o.transition(StateStandby, ev.source)
	o.notify("standby")
	o.sendBroadcast(CommandStart)

	o.transition(StateRunning, ev.source)
	o.beginRun()
}

func (o *Orchestrator) handleStop(ev event) {
	o.logger.Info("Stop accepted", zap.String("source", ev.source))

	o.setLooping(false)
	o.setCycle(0)

	o.controller.Stop()
	o.notify("stop")
	o.sendBroadcast(CommandStop)

	// A fault survives stop; the only way out is clear-fault.
	if o.state != StateFault {
		o.transition(StateStopped, ev.source)
	}
}

func (o *Orchestrator) handleReset(ev event) {
	o.logger.Info("Reset accepted", zap.String("source", ev.source))

	o.setLooping(false)
	o.setCycle(0)

	o.controller.Stop()
	o.notify("reset")
	o.sendBroadcast(CommandReset)

	o.transition(StateHoming, ev.source)

	// Homing blocks for up to the homing timeout; run it off the loop so
	// stop and clear-fault stay responsive. The ready event brings the
	// state back to ready.
	go func() {
		if err := o.controller.ResetToHome(context.Background()); err != nil {
			o.logger.Error("Reset homing failed", zap.Error(err))
		}
	}()
}

func (o *Orchestrator) handleClearFault(ev event) {
	o.logger.Info("Clear-fault accepted", zap.String("source", ev.source))

	if err := o.controller.ClearFault(); err != nil {
		o.logger.Error("Fault clear delegation failed", zap.Error(err))
	}
	o.sendBroadcast(CommandClearFault)

	if o.state != StateFault {
		return
	}

	// Leave fault only once no fault flag remains; never blindly.
	fault, err := o.controller.FaultActive()
	if err != nil {
		o.logger.Error("Cannot confirm fault cleared", zap.Error(err))
		return
	}
	if fault {
		o.logger.Warn("Fault flag still active after clear, staying in fault")
		return
	}

	o.controller.AcknowledgeFault()
	o.setLastError("")
	o.transition(StateReady, ev.source)
	o.notify("ready")
}

func (o *Orchestrator) handleCycle() {
	if !o.isLooping() {
		o.logger.Info("Loop cancelled during inter-cycle delay")
		return
	}
	if o.state != StateRunning {
		o.logger.Warn("Cycle event outside running state ignored",
			zap.String("state", string(o.state)))
		return
	}

	o.setCycle(o.cycle + 1)
	o.logger.Info("Starting next cycle", zap.Int("cycle", o.cycle))
	o.beginRun()
}

func (o *Orchestrator) handleActuatorReady() {
	if o.state != StateBoot && o.state != StateHoming {
		o.logger.Warn("Actuator ready outside homing ignored",
			zap.String("state", string(o.state)))
		return
	}

	o.transition(StateReady, "actuator")
	o.notify("ready")
	o.logger.Info("System ready, waiting for start command")
}

func (o *Orchestrator) handleActuatorFinished() {
	if o.state != StateRunning {
		o.logger.Warn("Finished event outside running state ignored",
			zap.String("state", string(o.state)))
		return
	}

	o.record("finished")
	o.notify("finished")

	if o.isLooping() {
		// Stay running; re-check the looping flag when the delay fires so
		// a stop issued during the wait cancels the next cycle.
		o.logger.Info("Cycle finished, scheduling next run",
			zap.Int("cycle", o.cycle),
			zap.Duration("delay", o.cfg.LoopDelay))
		time.AfterFunc(o.cfg.LoopDelay, func() {
			o.post(event{kind: evCycle, source: "loop"})
		})
		return
	}

	o.transition(StateFinished, "actuator")
	o.transition(StateReady, "auto")
}

func (o *Orchestrator) handleActuatorError(msg string) {
	if o.state == StateFault {
		o.logger.Warn("Actuator error while already in fault", zap.String("cause", msg))
		return
	}

	o.setLooping(false)
	o.setLastError(msg)
	if o.state == StateRunning {
		o.record("fault")
	}
	o.transition(StateFault, "actuator")
	if o.notifier != nil {
		o.notifier.NotifyError(msg)
	}
	if o.hub != nil {
		o.hub.Broadcast(websocket.NewActuatorErrorMessage(msg))
	}
}

// beginRun issues the configured operation for the current cycle.
func (o *Orchestrator) beginRun() {
	o.runID = uuid.New()
	o.runStart = time.Now()
	o.controller.StartOperation(o.cfg.OperationID)
}

func (o *Orchestrator) record(outcome string) {
	if o.recorder != nil {
		o.recorder.RecordRun(o.runID.String(), o.cfg.OperationID, o.cycle, outcome,
			time.Since(o.runStart).Milliseconds())
	}
	if o.hub != nil {
		o.hub.Broadcast(websocket.NewRunEventMessage(o.runID.String(), o.cfg.OperationID, o.cycle, outcome))
	}
}

func (o *Orchestrator) transition(to SystemState, cause string) {
	from := o.state

	o.mu.Lock()
	o.state = to
	o.mu.Unlock()

	o.logger.Info("System state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("cause", cause))

	if o.recorder != nil {
		o.recorder.RecordTransition(from, to, cause)
	}
	if o.hub != nil {
		o.hub.Broadcast(websocket.NewStationStateMessage(string(to), string(from), o.cycle))
	}
}

func (o *Orchestrator) sendBroadcast(cmd Command) {
	if o.broadcast != nil {
		o.broadcast.Broadcast(cmd)
	}
}

func (o *Orchestrator) notify(event string) {
	if o.notifier != nil {
		o.notifier.Notify(event)
	}
}

func (o *Orchestrator) setLooping(v bool) {
	o.mu.Lock()
	o.looping = v
	o.mu.Unlock()
}

func (o *Orchestrator) isLooping() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.looping
}

func (o *Orchestrator) setCycle(n int) {
	o.mu.Lock()
	o.cycle = n
	o.mu.Unlock()
}

func (o *Orchestrator) setLastError(msg string) {
	o.mu.Lock()
	o.lastError = msg
	o.mu.Unlock()
}
