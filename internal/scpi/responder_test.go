package scpi

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wildwood-code/FResp/internal/transport"
)

// mockInstrument is a scripted instrument behind an in-memory net.Conn.
// Command lines are recorded as they are written and query replies are
// served from a fixed command->reply table, so every command is visible
// to the test the moment the write returns.
type mockInstrument struct {
	conn *transport.Conn

	mu       sync.Mutex
	partial  bytes.Buffer
	pending  bytes.Buffer
	received []string
	replies  map[string]string
	closed   bool
}

func newMockInstrument(t *testing.T, replies map[string]string) *mockInstrument {
	t.Helper()
	m := &mockInstrument{replies: replies}
	m.conn = &transport.Conn{}
	m.conn.SetConn((*mockConn)(m))
	t.Cleanup(func() { _ = m.conn.Close() })
	return m
}

// commands returns a snapshot of the command lines received so far.
func (m *mockInstrument) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.received))
	copy(out, m.received)
	return out
}

// mockConn adapts mockInstrument to net.Conn.
type mockConn mockInstrument

func (c *mockConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	c.partial.Write(p)
	for {
		line, err := c.partial.ReadString('\n')
		if err != nil {
			// keep the incomplete tail for the next write
			c.partial.WriteString(line)
			break
		}
		cmd := strings.TrimSuffix(line, "\n")
		c.received = append(c.received, cmd)
		if reply := c.replies[cmd]; reply != "" {
			c.pending.WriteString(reply)
		}
	}
	return len(p), nil
}

func (c *mockConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	if c.pending.Len() == 0 {
		// a query with no scripted reply would otherwise block forever
		return 0, io.EOF
	}
	return c.pending.Read(p)
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) LocalAddr() net.Addr              { return mockAddr{} }
func (c *mockConn) RemoteAddr() net.Addr             { return mockAddr{} }
func (c *mockConn) SetDeadline(time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(time.Time) error { return nil }

type mockAddr struct{}

func (mockAddr) Network() string { return "mock" }
func (mockAddr) String() string  { return "mock" }
