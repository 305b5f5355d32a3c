package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// DefaultPipeInterval is how often a Pipe delivers queued datagrams.
const DefaultPipeInterval = time.Millisecond

// Pipe is an in-memory datagram link between an accessory end and a
// central end. It stands in for the radio link in tests and demos.
type Pipe struct {
	bridge *test.Bridge

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPipe creates a pipe that delivers datagrams every interval. A zero
// interval selects DefaultPipeInterval.
func NewPipe(interval time.Duration) *Pipe {
	if interval <= 0 {
		interval = DefaultPipeInterval
	}
	p := &Pipe{
		bridge: test.NewBridge(),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				for p.bridge.Tick() > 0 {
				}
			}
		}
	}()
	return p
}

// Accessory returns the accessory end as a MessageConn. Closing either end
// closes the pipe.
func (p *Pipe) Accessory(maxSize uint32) *PacketConn {
	return NewPacketConn(&pipeConn{Conn: p.bridge.GetConn0(), pipe: p, local: PipeAddr(0), remote: PipeAddr(1)}, maxSize)
}

// Central returns the central end as a MessageConn. Closing either end
// closes the pipe.
func (p *Pipe) Central(maxSize uint32) *PacketConn {
	return NewPacketConn(&pipeConn{Conn: p.bridge.GetConn1(), pipe: p, local: PipeAddr(1), remote: PipeAddr(0)}, maxSize)
}

// Close closes both ends and stops delivery. Undelivered datagrams are
// dropped and pending reads return io.EOF.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()

	// The bridge closes a read channel on the next tick once its queue is
	// empty, and no ticker runs anymore.
	p.bridge.Drop(0, 0, p.bridge.Len(0))
	p.bridge.Drop(1, 0, p.bridge.Len(1))
	p.bridge.Tick()

	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr identifies a pipe end.
type PipeAddr int

// Network implements net.Addr.
func (a PipeAddr) Network() string { return "pipe" }

func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", int(a)) }

// pipeConn gives the bridge ends addresses and ties their lifetime to the
// pipe.
type pipeConn struct {
	net.Conn
	pipe          *Pipe
	local, remote net.Addr
}

func (c *pipeConn) Close() error { return c.pipe.Close() }

func (c *pipeConn) LocalAddr() net.Addr  { return c.local }
func (c *pipeConn) RemoteAddr() net.Addr { return c.remote }
