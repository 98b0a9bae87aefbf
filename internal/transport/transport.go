// Package transport provides the byte-stream connection to a SCPI-style
// instrument: dial an address:port resource, write command lines, and take a
// single blocking receive as the complete reply to a query.
package transport

import (
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// recvBufLen bounds a single query reply. Instrument replies are one short
// text line; one receive call's worth of bytes is the whole answer.
const recvBufLen = 256

// resourceRE accepts "192.168.0.197:5025", "http://192.168.0.197:5025", and
// "http://192.168.0.197:5025/".
var resourceRE = regexp.MustCompile(`^(?:[a-zA-Z]+://)?([0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}):([0-9]{1,5})/?$`)

// SplitResource extracts the host and port from an instrument resource
// identifier.
func SplitResource(resource string) (host, port string, err error) {
	m := resourceRE.FindStringSubmatch(resource)
	if m == nil {
		return "", "", fmt.Errorf("invalid resource %q", resource)
	}
	return m[1], m[2], nil
}

// Conn is a line-oriented instrument connection. It is not safe for
// concurrent use; the owning session serializes all operations.
type Conn struct {
	Resource string
	Timeout  time.Duration
	Logger   zerolog.Logger

	conn net.Conn
}

// Dial opens a TCP connection to the instrument named by resource.
func Dial(resource string) (*Conn, error) {
	c := &Conn{
		Resource: resource,
		Timeout:  5 * time.Second,
		Logger:   zerolog.Nop(),
	}
	host, port, err := SplitResource(resource)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", resource, err)
	}
	c.conn = conn
	return c, nil
}

// SetConn injects an existing connection (tests, tunnels).
func (c *Conn) SetConn(conn net.Conn) {
	c.conn = conn
}

// SetLogger routes command/reply tracing to the given logger.
func (c *Conn) SetLogger(l zerolog.Logger) {
	c.Logger = l
}

func (c *Conn) Close() error {
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Connected reports whether the connection is open.
func (c *Conn) Connected() bool {
	return c != nil && c.conn != nil
}

func (c *Conn) applyWriteDeadline() {
	if c.conn != nil && c.Timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.Timeout))
	}
}

func (c *Conn) applyReadDeadline() {
	if c.conn != nil && c.Timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.Timeout))
	}
}

// writeAll writes the full buffer to the socket, handling short writes.
func (c *Conn) writeAll(b []byte) error {
	if c.conn == nil {
		return fmt.Errorf("writeAll: not connected")
	}
	for len(b) > 0 {
		c.applyWriteDeadline()
		n, err := c.conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Write sends one command line, appending the '\n' terminator when absent.
func (c *Conn) Write(command string) error {
	if c.conn == nil {
		return fmt.Errorf("write: not connected")
	}
	if len(command) == 0 || command[len(command)-1] != '\n' {
		command += "\n"
	}
	c.Logger.Debug().Str("resource", c.Resource).Str("cmd", command).Msg("write")
	return c.writeAll([]byte(command))
}

// Query sends one command line and returns the bytes of a single blocking
// receive as the complete reply. There is no retry and no partial-read
// reassembly.
func (c *Conn) Query(command string) ([]byte, error) {
	if err := c.Write(command); err != nil {
		return nil, err
	}
	buf := make([]byte, recvBufLen)
	c.applyReadDeadline()
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", command, err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("query %q: empty reply", command)
	}
	c.Logger.Debug().Str("resource", c.Resource).Str("reply", string(buf[:n])).Msg("query")
	return buf[:n], nil
}
