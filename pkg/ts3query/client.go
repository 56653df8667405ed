package ts3query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kdar/factorlog"
	"github.com/sasha-s/go-deadlock"
)

const (
	// DefaultTimeout is used for dialing and waiting for responses.
	DefaultTimeout = 10 * time.Second

	// DefaultSettleDelay is the pause before reading a response, servers need a moment before data is available.
	DefaultSettleDelay = 50 * time.Millisecond

	// DefaultDrainTimeout is how long we wait for trailing data once a terminator was seen.
	DefaultDrainTimeout = 5 * time.Millisecond

	// DefaultMaxResponseSize limits the accumulated bytes of a single response.
	DefaultMaxResponseSize = 1 << 20

	readChunkSize = 1024
)

var discardLog = factorlog.New(io.Discard, factorlog.NewStdFormatter("%{Message}"))

// Client is a minimal ServerQuery client holding a single connection.
// Only one command is outstanding at a time.
type Client struct {
	Timeout         time.Duration
	SettleDelay     time.Duration
	DrainTimeout    time.Duration
	MaxResponseSize int
	Logger          *factorlog.FactorLog

	mutex   deadlock.Mutex
	conn    net.Conn
	address string
}

// NewClient creates a disconnected client using the given timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		Timeout:         timeout,
		SettleDelay:     DefaultSettleDelay,
		DrainTimeout:    DefaultDrainTimeout,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}

func (c *Client) log() *factorlog.FactorLog {
	if c.Logger == nil {
		return discardLog
	}

	return c.Logger
}

// Connect dials the query port and verifies the greeting.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		c.close()
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	c.log().Debugf("connecting to tcp://%s", address)

	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.log().Debugf("could not connect to %s: %s", address, err.Error())

		return &ConnectError{Kind: Unreachable, Address: address, Err: err}
	}

	greeting, err := c.readResponse(conn, address)
	if err != nil {
		conn.Close()
		var connErr *ConnectError
		if errors.As(err, &connErr) {
			return connErr
		}

		return &ConnectError{Kind: Unreachable, Address: address, Err: err}
	}
	c.log().Tracef("greeting: %q", greeting)

	if !strings.Contains(strings.ToUpper(greeting), "TS3") {
		conn.Close()
		c.log().Debugf("unexpected response from server: %s", greeting)

		return &ConnectError{Kind: UnexpectedGreeting, Address: address, Detail: strings.TrimSpace(greeting)}
	}

	c.conn = conn
	c.address = address
	c.log().Debugf("connected to %s", address)

	return nil
}

// SendCommand writes cmd and returns the decoded response.
// A response that timed out before its terminator arrived is decoded as far as it was received.
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.sendCommand(cmd)
}

// SelectVirtualServer switches the session to the virtual server listening on port.
func (c *Client) SelectVirtualServer(port int) (*Response, error) {
	return c.SendCommand(UseCommand(port))
}

// Login authenticates the session.
func (c *Client) Login(user, password string) (*Response, error) {
	return c.SendCommand(LoginCommand(user, password))
}

// HostInfo returns the instance wide statistics.
func (c *Client) HostInfo() (*Response, error) {
	return c.SendCommand(CmdHostInfo)
}

// ServerInfo returns the statistics of the selected virtual server.
func (c *Client) ServerInfo() (*Response, error) {
	return c.SendCommand(CmdServerInfo)
}

// Disconnect sends quit and closes the connection. It is safe to call it multiple times.
func (c *Client) Disconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn == nil {
		return
	}

	if _, err := c.sendCommand(CmdQuit); err != nil {
		c.log().Debugf("quit failed: %s", err.Error())
	}
	c.close()
}

func (c *Client) close() {
	if err := c.conn.Close(); err != nil {
		c.log().Debugf("closing connection to %s failed: %s", c.address, err.Error())
	}
	c.conn = nil
	c.log().Debugf("disconnected from %s", c.address)
}

func (c *Client) sendCommand(cmd Command) (*Response, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	if c.Timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.Timeout)); err != nil {
			return nil, fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := io.WriteString(c.conn, string(cmd)+"\r\n"); err != nil {
		return nil, fmt.Errorf("sending %s failed: %w", cmd.Name(), err)
	}
	c.log().Debugf("Sent: %s", cmd.Masked())

	raw, err := c.readResponse(c.conn, c.address)
	if err != nil {
		return nil, err
	}
	c.log().Debugf("Received (%s): %s", humanize.Bytes(uint64(len(raw))), raw)

	return Decode(raw), nil
}

// readResponse accumulates bytes until the buffer ends with the terminator, the peer closes
// the connection or the timeout is reached. Once a terminator has been seen, data which is
// already in flight is drained with a short deadline.
func (c *Client) readResponse(conn net.Conn, address string) (string, error) {
	time.Sleep(c.SettleDelay)

	var deadline time.Time
	if c.Timeout > 0 {
		deadline = time.Now().Add(c.Timeout)
	}

	terminator := []byte(Terminator)
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)
	for {
		terminated := bytes.HasSuffix(buf, terminator)
		readDeadline := deadline
		if terminated {
			readDeadline = time.Now().Add(c.DrainTimeout)
			if !deadline.IsZero() && deadline.Before(readDeadline) {
				readDeadline = deadline
			}
		}
		if err := conn.SetReadDeadline(readDeadline); err != nil {
			return string(buf), fmt.Errorf("set read deadline: %w", err)
		}

		num, err := conn.Read(chunk)
		buf = append(buf, chunk[:num]...)
		if c.MaxResponseSize > 0 && len(buf) > c.MaxResponseSize {
			return string(buf), &ConnectError{
				Kind:    ResponseTooLarge,
				Address: address,
				Detail:  fmt.Sprintf("more than %s without terminator", humanize.Bytes(uint64(c.MaxResponseSize))),
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, os.ErrDeadlineExceeded):
			if !bytes.HasSuffix(buf, terminator) {
				c.log().Debugf("no response terminator from %s within %s, using %d bytes received so far", address, c.Timeout, len(buf))
			}

			return string(buf), nil
		case errors.Is(err, io.EOF):
			return string(buf), nil
		case terminated:
			// the response was complete before the drain read failed
			c.log().Debugf("drain read from %s failed: %s", address, err.Error())

			return string(buf), nil
		default:
			return string(buf), fmt.Errorf("reading from %s failed: %w", address, err)
		}
	}
}
