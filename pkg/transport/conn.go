package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/solarlink/solarlink-go/pkg/log"
)

// ErrConnectionClosed is returned by operations on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// MessageConn carries whole link messages in both directions.
// WriteMessage is safe for concurrent use; ReadMessage is called from a
// single reader.
type MessageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	RemoteAddr() net.Addr
	Close() error
}

// DefaultWriteTimeout bounds a single message write on a stream. Writes
// happen with the coordinator lock held, so a stalled peer must not block
// them indefinitely.
const DefaultWriteTimeout = 5 * time.Second

// StreamConn frames messages over a byte stream such as TCP.
type StreamConn struct {
	conn   net.Conn
	framer *Framer
	wmu    sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps conn with length-prefixed framing.
func NewStreamConn(conn net.Conn, maxSize uint32) *StreamConn {
	return &StreamConn{conn: conn, framer: NewFramer(conn, maxSize)}
}

// SetLogger enables frame logging for the connection.
func (c *StreamConn) SetLogger(logger log.Logger, connID string) {
	c.framer.SetLogger(logger, connID)
}

// ReadMessage implements MessageConn.
func (c *StreamConn) ReadMessage() ([]byte, error) { return c.framer.ReadFrame() }

// WriteMessage implements MessageConn.
func (c *StreamConn) WriteMessage(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	return c.framer.WriteFrame(data)
}

// RemoteAddr implements MessageConn.
func (c *StreamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close implements MessageConn.
func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// PacketConn maps one message onto one datagram of a connected packet
// link, such as a pipe endpoint. Messages larger than the read buffer are
// rejected.
type PacketConn struct {
	conn    net.Conn
	maxSize int

	readBuf []byte
	writeMu sync.Mutex

	logger log.Logger
	connID string
}

// NewPacketConn wraps a datagram-preserving conn. A zero maxSize selects
// DefaultMaxMessageSize.
func NewPacketConn(conn net.Conn, maxSize uint32) *PacketConn {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &PacketConn{
		conn:    conn,
		maxSize: int(maxSize),
		readBuf: make([]byte, maxSize+1),
	}
}

// SetLogger enables frame logging for the connection.
func (c *PacketConn) SetLogger(logger log.Logger, connID string) {
	c.logger = logger
	c.connID = connID
}

// ReadMessage implements MessageConn.
func (c *PacketConn) ReadMessage() ([]byte, error) {
	n, err := c.conn.Read(c.readBuf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrMessageEmpty
	}
	if n > c.maxSize {
		return nil, fmt.Errorf("%w: datagram exceeds %d", ErrMessageTooLarge, c.maxSize)
	}
	msg := append([]byte(nil), c.readBuf[:n]...)
	if c.logger != nil {
		c.logger.Log(frameEvent(c.connID, log.DirectionIn, msg))
	}
	return msg, nil
}

// WriteMessage implements MessageConn.
func (c *PacketConn) WriteMessage(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > c.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), c.maxSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Log(frameEvent(c.connID, log.DirectionOut, data))
	}
	return nil
}

// RemoteAddr implements MessageConn.
func (c *PacketConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close implements MessageConn.
func (c *PacketConn) Close() error { return c.conn.Close() }

var (
	_ MessageConn = (*StreamConn)(nil)
	_ MessageConn = (*PacketConn)(nil)
)
