package input

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/StationCore/internal/sequence"
	"go.uber.org/zap"
)

type recHandler struct {
	mu   sync.Mutex
	cmds []sequence.Command
}

func (h *recHandler) Command(cmd sequence.Command, source string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd)
	return true
}

func (h *recHandler) received() []sequence.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sequence.Command(nil), h.cmds...)
}

func TestKeyReaderDispatchesCommands(t *testing.T) {
	handler := &recHandler{}
	reader := NewKeyReader(strings.NewReader("start\nstop\nreset\nclear-fault\n"), handler, zap.NewNop())

	if err := reader.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer reader.Close()

	want := []sequence.Command{
		sequence.CommandStart,
		sequence.CommandStop,
		sequence.CommandReset,
		sequence.CommandClearFault,
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(handler.received()) < len(want) {
		time.Sleep(2 * time.Millisecond)
	}

	got := handler.received()
	if len(got) != len(want) {
		t.Fatalf("dispatched %d commands, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeyReaderDropsUnknownAndBlankLines(t *testing.T) {
	handler := &recHandler{}
	reader := NewKeyReader(strings.NewReader("go\n\n   \nstart\nhalt\n"), handler, zap.NewNop())

	if err := reader.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer reader.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(handler.received()) == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	got := handler.received()
	if len(got) != 1 || got[0] != sequence.CommandStart {
		t.Errorf("dispatched = %v, want only [start]", got)
	}
}

func TestKeyReaderTrimsWhitespace(t *testing.T) {
	handler := &recHandler{}
	reader := NewKeyReader(strings.NewReader("  stop  \n"), handler, zap.NewNop())

	if err := reader.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer reader.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(handler.received()) == 0 {
		time.Sleep(2 * time.Millisecond)
	}

	got := handler.received()
	if len(got) != 1 || got[0] != sequence.CommandStop {
		t.Errorf("dispatched = %v, want [stop]", got)
	}
}

func TestKeyReaderCloseIsIdempotent(t *testing.T) {
	reader := NewKeyReader(strings.NewReader(""), &recHandler{}, zap.NewNop())
	if err := reader.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
