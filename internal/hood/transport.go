package hood

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Greeting is the token some firmware revisions send right after the TCP
// accept. Its absence is normal and never blocks an exchange.
const Greeting = "okidargb"

var (
	// ErrConnect marks a failure to open the TCP session.
	ErrConnect = errors.New("hood: connect failed")
	// ErrTransport marks a write failure after a successful connect.
	ErrTransport = errors.New("hood: transport failed")
)

const (
	greetingBufSize = 100
	replyBufSize    = 2048
)

// Timeouts bounds every socket operation in an exchange. Zero values fall
// back to the defaults; unbounded blocking is never allowed.
type Timeouts struct {
	Connect   time.Duration
	Handshake time.Duration
	Response  time.Duration
}

const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 3 * time.Second
	DefaultResponseTimeout  = 2 * time.Second
)

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.Handshake <= 0 {
		t.Handshake = DefaultHandshakeTimeout
	}
	if t.Response <= 0 {
		t.Response = DefaultResponseTimeout
	}
	return t
}

// session is one single-use TCP exchange with the device. The embedded
// server desynchronizes on reused connections, so a session is opened,
// used for exactly one command, and closed.
type session struct {
	conn     net.Conn
	timeouts Timeouts
}

// dialSession opens the TCP connection. The context can cut the dial
// short; the connect timeout applies regardless.
func dialSession(ctx context.Context, host string, port int, timeouts Timeouts) (*session, error) {
	dialer := net.Dialer{Timeout: timeouts.Connect}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %v", ErrConnect, host, port, err)
	}
	return &session{conn: conn, timeouts: timeouts}, nil
}

// readGreeting performs the single small handshake read. ok reports
// whether the greeting token arrived; a timeout or short read is not an
// error, since several firmware/network paths omit the greeting entirely.
func (s *session) readGreeting() (raw []byte, ok bool) {
	raw = s.readOnce(greetingBufSize, s.timeouts.Handshake)
	return raw, bytes.Contains(raw, []byte(Greeting))
}

// writeFrame sends the encoded command. A write failure is fatal to the
// exchange.
func (s *session) writeFrame(frame []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeouts.Response)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	_ = s.conn.SetWriteDeadline(time.Time{})
	return nil
}

// readReply attempts one best-effort read of the device's answer. Empty
// bytes mean "no response this time", which is a normal outcome: the
// device frequently stays silent after a write.
func (s *session) readReply() []byte {
	return s.readOnce(replyBufSize, s.timeouts.Response)
}

func (s *session) readOnce(bufSize int, timeout time.Duration) []byte {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil
	}
	buf := make([]byte, bufSize)
	n, _ := s.conn.Read(buf)
	_ = s.conn.SetReadDeadline(time.Time{})
	if n > 0 {
		return buf[:n]
	}
	return nil
}

// Close releases the connection. Every exchange path, including
// cancellation and decode failures, runs through here.
func (s *session) Close() error {
	return s.conn.Close()
}
