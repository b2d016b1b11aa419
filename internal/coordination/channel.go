// Package coordination keeps the stations in lockstep: a best-effort UDP
// broadcast of the fixed command vocabulary, and a listener dispatching the
// same vocabulary into the orchestrator. No acknowledgment, retry or
// ordering; duplicates and loss are absorbed by the idempotent handlers.
package coordination

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/StationCore/internal/config"
	"github.com/KevinKickass/StationCore/internal/sequence"
	"go.uber.org/zap"
)

const sendTimeout = 500 * time.Millisecond

// Handler receives commands arriving from peer stations. Satisfied by the
// orchestrator; handlers must be idempotent or state-gated.
type Handler interface {
	Command(cmd sequence.Command, source string) bool
}

type Channel struct {
	logger  *zap.Logger
	handler Handler

	listenPort int
	sendPort   int
	isSender   bool
	peers      []string

	conn *net.UDPConn
	wg   sync.WaitGroup
}

func NewChannel(cfg config.NetworkConfig, logger *zap.Logger) *Channel {
	return &Channel{
		logger:     logger,
		listenPort: cfg.ListenPort,
		sendPort:   cfg.SendPort,
		isSender:   cfg.IsSender,
		peers:      cfg.Peers,
	}
}

// SetHandler wires the command sink. Must be called before Start.
func (c *Channel) SetHandler(handler Handler) {
	c.handler = handler
}

// Start binds the listen port and begins dispatching peer commands.
func (c *Channel) Start() error {
	addr := &net.UDPAddr{Port: c.listenPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind coordination port %d: %w", c.listenPort, err)
	}
	c.conn = conn

	c.wg.Add(1)
	go c.listen()

	c.logger.Info("Coordination listener started",
		zap.Int("port", c.listenPort),
		zap.Bool("sender", c.isSender),
		zap.Int("peers", len(c.peers)))
	return nil
}

// Stop closes the listener. Safe to call more than once.
func (c *Channel) Stop() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.wg.Wait()
}

func (c *Channel) listen() {
	defer c.wg.Done()

	buf := make([]byte, 64)
	for {
		n, remote, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			// Closed during shutdown.
			return
		}

		name := strings.TrimSpace(string(buf[:n]))
		cmd, ok := sequence.ParseCommand(name)
		if !ok {
			c.logger.Warn("Unknown peer command dropped",
				zap.String("payload", name),
				zap.String("peer", remote.String()))
			continue
		}

		c.logger.Info("Peer command received",
			zap.String("command", string(cmd)),
			zap.String("peer", remote.String()))

		c.handler.Command(cmd, "peer:"+remote.IP.String())
	}
}

// Broadcast fans the command out to every configured peer. Fire and forget:
// a failed send is logged and never blocks the remaining peers or the local
// execution of the command. Only the sender station fans out; everyone else
// acts locally.
func (c *Channel) Broadcast(cmd sequence.Command) {
	if !c.isSender {
		return
	}

	c.logger.Info("Broadcasting command to peers",
		zap.String("command", string(cmd)),
		zap.Int("peers", len(c.peers)))

	for _, peer := range c.peers {
		if err := c.sendTo(peer, cmd); err != nil {
			c.logger.Error("Failed to send command to peer",
				zap.String("command", string(cmd)),
				zap.String("peer", peer),
				zap.Error(err))
		}
	}
}

func (c *Channel) sendTo(peer string, cmd sequence.Command) error {
	target := peer
	if !strings.Contains(peer, ":") {
		target = fmt.Sprintf("%s:%d", peer, c.sendPort)
	}

	conn, err := net.DialTimeout("udp", target, sendTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	_, err = conn.Write([]byte(cmd))
	return err
}
