// Package notify emits fire-and-forget notifications toward the downstream
// playback system. Same reliability posture as the coordination channel: a
// lost datagram is logged, never escalated.
package notify

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 500 * time.Millisecond

// Notifier sends named events (ready, standby, finished, stop, reset,
// error <message>) to one configured downstream address.
type Notifier struct {
	logger  *zap.Logger
	address string
	enabled bool
}

func NewNotifier(address string, enabled bool, logger *zap.Logger) *Notifier {
	return &Notifier{
		logger:  logger,
		address: address,
		enabled: enabled && address != "",
	}
}

func (n *Notifier) Notify(event string) {
	n.send(event)
}

func (n *Notifier) NotifyError(message string) {
	n.send(fmt.Sprintf("error %s", message))
}

func (n *Notifier) send(payload string) {
	if !n.enabled {
		return
	}

	conn, err := net.DialTimeout("udp", n.address, sendTimeout)
	if err != nil {
		n.logger.Error("Downstream notification failed",
			zap.String("event", payload),
			zap.String("address", n.address),
			zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if _, err := conn.Write([]byte(payload)); err != nil {
		n.logger.Error("Downstream notification failed",
			zap.String("event", payload),
			zap.String("address", n.address),
			zap.Error(err))
		return
	}

	n.logger.Info("Downstream notification sent", zap.String("event", payload))
}
