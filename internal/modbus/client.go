package modbus

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a Modbus TCP client for one gateway connection. All requests on
// one connection are serialized; actuator units behind the same gateway share
// a Client and are addressed by unit ID.
type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address:       address,
		timeout:       timeout,
		transactionID: 0,
	}
}

// Connect stellt TCP-Verbindung her
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close schließt die Verbindung
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendFrame sendet ein Frame und wartet auf Response
func (c *Client) SendFrame(request *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}

	// Unique Transaction ID
	c.transactionID++
	request.TransactionID = c.transactionID

	requestData := request.Encode()

	deadline := time.Now().Add(c.timeout)
	c.conn.SetWriteDeadline(deadline)

	if _, err := c.conn.Write(requestData); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	c.conn.SetReadDeadline(deadline)

	responseBuffer := make([]byte, 260) // Max Modbus TCP Frame
	n, err := c.conn.Read(responseBuffer)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(responseBuffer[:n])
	if err != nil {
		return nil, err
	}

	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

// ReadHoldingRegisters liest Holding Registers
func (c *Client) ReadHoldingRegisters(unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	request := ReadHoldingRegistersRequest(0, unitID, startAddr, quantity)

	response, err := c.SendFrame(request)
	if err != nil {
		return nil, err
	}

	return response.ParseRegisterResponse()
}

// WriteSingleRegister schreibt ein einzelnes Register
func (c *Client) WriteSingleRegister(unitID uint8, addr uint16, value uint16) error {
	request := WriteSingleRegisterRequest(0, unitID, addr, value)

	_, err := c.SendFrame(request)
	return err
}

// WriteMultipleRegisters schreibt mehrere aufeinanderfolgende Register
func (c *Client) WriteMultipleRegisters(unitID uint8, startAddr uint16, values []uint16) error {
	request := WriteMultipleRegistersRequest(0, unitID, startAddr, values)

	_, err := c.SendFrame(request)
	return err
}
