// Package input bridges local operator controls into the orchestrator.
// Events may arrive on any goroutine; the orchestrator marshals them onto
// its own event loop, so handlers here just forward.
package input

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/KevinKickass/StationCore/internal/sequence"
	"go.uber.org/zap"
)

// Handler receives locally triggered commands. Satisfied by the orchestrator.
type Handler interface {
	Command(cmd sequence.Command, source string) bool
}

// Source is a local control surface producing the four command events.
type Source interface {
	Start() error
	Close() error
}

// KeyReader reads newline-separated command names from a reader: the
// operator console, or the pipe from the GPIO key daemon. Lines that are
// not part of the command vocabulary are logged and dropped.
type KeyReader struct {
	logger  *zap.Logger
	handler Handler
	r       io.Reader

	closeOnce sync.Once
	quit      chan struct{}
}

func NewKeyReader(r io.Reader, handler Handler, logger *zap.Logger) *KeyReader {
	return &KeyReader{
		logger:  logger,
		handler: handler,
		r:       r,
		quit:    make(chan struct{}),
	}
}

// Start begins reading commands. The read loop runs on its own goroutine
// until the reader is exhausted or the source is closed.
func (k *KeyReader) Start() error {
	go k.readLoop()
	k.logger.Info("Key input listening (start / stop / reset / clear-fault)")
	return nil
}

func (k *KeyReader) Close() error {
	k.closeOnce.Do(func() { close(k.quit) })
	return nil
}

func (k *KeyReader) readLoop() {
	scanner := bufio.NewScanner(k.r)
	for scanner.Scan() {
		select {
		case <-k.quit:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, ok := sequence.ParseCommand(line)
		if !ok {
			k.logger.Warn("Unknown input command dropped", zap.String("input", line))
			continue
		}

		k.logger.Info("Key command", zap.String("command", string(cmd)))
		k.handler.Command(cmd, "input")
	}

	if err := scanner.Err(); err != nil {
		k.logger.Warn("Key input closed", zap.Error(err))
	}
}
