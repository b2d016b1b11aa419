package actuator

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeDriver simulates one unit. moveFor controls how long the moving flag
// stays set after a start command; holdMoving keeps it set forever.
type fakeDriver struct {
	mu         sync.Mutex
	connected  bool
	homed      bool
	moving     bool
	holdMoving bool
	fault      bool
	position   int32
	moveFor    time.Duration

	ops      []int
	stops    int
	clears   int
	homings  int
	retracts int

	homingErr error
}

func (f *fakeDriver) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeDriver) StartHoming(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homings++
	if f.homingErr != nil {
		return f.homingErr
	}
	f.homed = true
	return nil
}

func (f *fakeDriver) HomeComplete() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.homed, nil
}

func (f *fakeDriver) StartOperation(opID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, opID)
	f.beginMotionLocked()
	return nil
}

func (f *fakeDriver) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.moving = false
	return nil
}

func (f *fakeDriver) ReturnToOrigin(velocity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retracts++
	f.beginMotionLocked()
	return nil
}

func (f *fakeDriver) ClearFault() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.fault = false
	return nil
}

func (f *fakeDriver) Position() (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

func (f *fakeDriver) Moving() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moving, nil
}

func (f *fakeDriver) Ready() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.moving && !f.fault, nil
}

func (f *fakeDriver) AtTarget() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.moving, nil
}

func (f *fakeDriver) FaultActive() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fault, nil
}

func (f *fakeDriver) RunningOperation() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ops) == 0 {
		return 0, nil
	}
	return f.ops[len(f.ops)-1], nil
}

func (f *fakeDriver) beginMotionLocked() {
	if f.holdMoving {
		f.moving = true
		return
	}
	if f.moveFor <= 0 {
		return
	}
	f.moving = true
	time.AfterFunc(f.moveFor, func() {
		f.mu.Lock()
		f.moving = false
		f.mu.Unlock()
	})
}

func (f *fakeDriver) setFault(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = v
}

func (f *fakeDriver) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

func (f *fakeDriver) counters() (stops, clears, homings, retracts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops, f.clears, f.homings, f.retracts
}

// recListener records controller callbacks.
type recListener struct {
	mu       sync.Mutex
	ready    int
	finished int
	errs     []string
}

func (r *recListener) ActuatorReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready++
}

func (r *recListener) ActuatorFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
}

func (r *recListener) ActuatorError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *recListener) counts() (ready, finished, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready, r.finished, len(r.errs)
}

func testConfig() Config {
	return Config{
		HomingRequired:  true,
		HomingTimeout:   time.Second,
		PollInterval:    5 * time.Millisecond,
		StartGrace:      50 * time.Millisecond,
		CompletionLimit: time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitializeWithoutUnits(t *testing.T) {
	listener := &recListener{}
	c := NewController(nil, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := c.State(); got != StateReady {
		t.Errorf("state = %q, want %q", got, StateReady)
	}
	if ready, _, _ := listener.counts(); ready != 1 {
		t.Errorf("ready callbacks = %d, want 1", ready)
	}
}

func TestInitializeSkipsHomedUnits(t *testing.T) {
	homed := &fakeDriver{homed: true}
	fresh := &fakeDriver{}
	listener := &recListener{}
	c := NewController([]Unit{
		{Name: "a", Driver: homed},
		{Name: "b", Driver: fresh},
	}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, _, homings, _ := homed.counters(); homings != 0 {
		t.Errorf("already homed unit was homed %d times, want 0", homings)
	}
	if _, _, homings, _ := fresh.counters(); homings != 1 {
		t.Errorf("fresh unit homed %d times, want 1", homings)
	}
	if got := c.State(); got != StateReady {
		t.Errorf("state = %q, want %q", got, StateReady)
	}
}

func TestInitializeHomingFailure(t *testing.T) {
	bad := &fakeDriver{homingErr: context.DeadlineExceeded}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: bad}}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize succeeded, want error")
	}

	if got := c.State(); got != StateFault {
		t.Errorf("state = %q, want %q", got, StateFault)
	}
	if _, _, errs := listener.counts(); errs != 1 {
		t.Errorf("error callbacks = %d, want 1", errs)
	}
}

func TestStartOperationRequiresReady(t *testing.T) {
	d := &fakeDriver{}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	// Not initialized, still disconnected.
	c.StartOperation(3)

	if got := d.opCount(); got != 0 {
		t.Errorf("operations issued = %d, want 0", got)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %q, want %q", got, StateDisconnected)
	}
}

func TestOperationWaitsForSlowestUnit(t *testing.T) {
	fast := &fakeDriver{homed: true, moveFor: 40 * time.Millisecond}
	slow := &fakeDriver{homed: true, moveFor: 120 * time.Millisecond}
	listener := &recListener{}
	c := NewController([]Unit{
		{Name: "fast", Driver: fast},
		{Name: "slow", Driver: slow},
	}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.StartOperation(2)

	// The fast unit has fallen but the slow one is still moving.
	time.Sleep(70 * time.Millisecond)
	if _, finished, _ := listener.counts(); finished != 0 {
		t.Fatal("finished before slowest unit completed")
	}

	waitFor(t, time.Second, "group completion", func() bool {
		_, finished, _ := listener.counts()
		return finished == 1
	})
	waitFor(t, time.Second, "ready state", func() bool {
		return c.State() == StateReady
	})

	if got := fast.opCount(); got != 1 {
		t.Errorf("fast unit operations = %d, want 1", got)
	}
	if got := slow.opCount(); got != 1 {
		t.Errorf("slow unit operations = %d, want 1", got)
	}
}

func TestStopCancelsCompletionMonitor(t *testing.T) {
	d := &fakeDriver{homed: true, moveFor: 150 * time.Millisecond}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.StartOperation(1)
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	// Long enough for the cancelled monitor to have fired if it survived.
	time.Sleep(250 * time.Millisecond)

	if _, finished, _ := listener.counts(); finished != 0 {
		t.Errorf("finished callbacks after stop = %d, want 0", finished)
	}
	if got := c.State(); got != StateReady {
		t.Errorf("state = %q, want %q", got, StateReady)
	}
	if stops, _, _, _ := d.counters(); stops == 0 {
		t.Error("hardware stop was never issued")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	d := &fakeDriver{homed: true}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	c.Stop()
	c.Stop()

	if got := c.State(); got != StateReady {
		t.Errorf("state = %q, want %q", got, StateReady)
	}
	if stops, _, _, _ := d.counters(); stops != 2 {
		t.Errorf("hardware stops = %d, want 2", stops)
	}
}

func TestStopKeepsFaultState(t *testing.T) {
	d := &fakeDriver{homed: true, holdMoving: true}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.StartOperation(1)
	d.setFault(true)

	waitFor(t, time.Second, "fault state", func() bool {
		return c.State() == StateFault
	})

	c.Stop()
	if got := c.State(); got != StateFault {
		t.Errorf("state after stop = %q, want %q", got, StateFault)
	}
}

func TestFaultDuringOperationReportsOnce(t *testing.T) {
	d := &fakeDriver{homed: true, holdMoving: true}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.StartOperation(1)
	time.Sleep(20 * time.Millisecond)
	d.setFault(true)

	waitFor(t, time.Second, "error callback", func() bool {
		_, _, errs := listener.counts()
		return errs >= 1
	})

	time.Sleep(100 * time.Millisecond)
	if _, finished, errs := listener.counts(); errs != 1 || finished != 0 {
		t.Errorf("errs = %d, finished = %d, want 1 and 0", errs, finished)
	}
	if got := c.State(); got != StateFault {
		t.Errorf("state = %q, want %q", got, StateFault)
	}
}

func TestNoMotionCompletesAfterGrace(t *testing.T) {
	// moveFor zero: the start command produces no visible motion at all.
	d := &fakeDriver{homed: true}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.StartOperation(5)

	waitFor(t, time.Second, "grace completion", func() bool {
		_, finished, _ := listener.counts()
		return finished == 1
	})
	waitFor(t, time.Second, "ready state", func() bool {
		return c.State() == StateReady
	})
}

func TestCompletionTimeoutFaults(t *testing.T) {
	d := &fakeDriver{homed: true, holdMoving: true}
	listener := &recListener{}
	cfg := testConfig()
	cfg.CompletionLimit = 80 * time.Millisecond
	c := NewController([]Unit{{Name: "a", Driver: d}}, cfg, listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.StartOperation(1)

	waitFor(t, time.Second, "timeout fault", func() bool {
		return c.State() == StateFault
	})
	if _, finished, errs := listener.counts(); errs != 1 || finished != 0 {
		t.Errorf("errs = %d, finished = %d, want 1 and 0", errs, finished)
	}
}

func TestStopRetractsWhenConfigured(t *testing.T) {
	d := &fakeDriver{homed: true, moveFor: 20 * time.Millisecond}
	listener := &recListener{}
	cfg := testConfig()
	cfg.RetractOnStop = true
	cfg.RetractVelocity = 500
	c := NewController([]Unit{{Name: "a", Driver: d}}, cfg, listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Stop()

	waitFor(t, time.Second, "retract command", func() bool {
		_, _, _, retracts := d.counters()
		return retracts == 1
	})
	if got := c.State(); got != StateReady {
		t.Errorf("state = %q, want %q", got, StateReady)
	}
}

func TestClearFaultDelegatesWithoutStateChange(t *testing.T) {
	d := &fakeDriver{homed: true, fault: true}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	if err := c.ClearFault(); err != nil {
		t.Fatalf("ClearFault: %v", err)
	}

	if _, clears, _, _ := d.counters(); clears != 1 {
		t.Errorf("clear commands = %d, want 1", clears)
	}
	fault, err := c.FaultActive()
	if err != nil {
		t.Fatalf("FaultActive: %v", err)
	}
	if fault {
		t.Error("fault still flagged after clear")
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %q, want %q (clear must not change state)", got, StateDisconnected)
	}
}

func TestResetToHomeForcesHoming(t *testing.T) {
	d := &fakeDriver{homed: true}
	listener := &recListener{}
	c := NewController([]Unit{{Name: "a", Driver: d}}, testConfig(), listener, zap.NewNop())

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, _, homings, _ := d.counters(); homings != 0 {
		t.Fatalf("homings after init = %d, want 0", homings)
	}

	if err := c.ResetToHome(context.Background()); err != nil {
		t.Fatalf("ResetToHome: %v", err)
	}

	if _, _, homings, _ := d.counters(); homings != 1 {
		t.Errorf("homings after reset = %d, want 1 (reset must not skip homed units)", homings)
	}
	if ready, _, _ := listener.counts(); ready != 2 {
		t.Errorf("ready callbacks = %d, want 2", ready)
	}
}
