package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/session"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

// ClientConfig configures a central connection.
type ClientConfig struct {
	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout bounds Dial when the context has no deadline
	// (default: 10s).
	ConnectTimeout time.Duration

	// Logger for operational messages. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives frame and message events (optional).
	ProtocolLogger log.Logger
}

func (c *ClientConfig) applyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client is the central side of a link connection. It implements
// session.Central.
type Client struct {
	config ClientConfig
	mc     MessageConn
	connID string

	nextID  atomic.Uint32
	mu      sync.Mutex
	pending map[uint32]chan *wire.Response
	err     error

	handlers    map[int]attribute.NotifyFunc
	nextHandler int

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to an accessory over TCP.
func Dial(ctx context.Context, address string, config ClientConfig) (*Client, error) {
	config.applyDefaults()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewClient(NewStreamConn(conn, config.MaxMessageSize), config), nil
}

// NewClient runs a central over an established connection.
func NewClient(mc MessageConn, config ClientConfig) *Client {
	config.applyDefaults()
	c := &Client{
		config:   config,
		mc:       mc,
		connID:   fmt.Sprintf("central-%s", addrString(mc.RemoteAddr())),
		pending:  make(map[uint32]chan *wire.Response),
		handlers: make(map[int]attribute.NotifyFunc),
		done:     make(chan struct{}),
	}
	if fl, ok := mc.(frameLogger); ok && config.ProtocolLogger != nil {
		fl.SetLogger(config.ProtocolLogger, c.connID)
	}
	go c.readLoop()
	return c
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection and fails pending requests.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.mc.Close() })
	<-c.done
	return err
}

// HandleNotifications registers fn for every notification received and
// returns a function that removes it. fn runs on the read goroutine and
// must not block.
func (c *Client) HandleNotifications(fn attribute.NotifyFunc) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Discover implements session.Central.
func (c *Client) Discover(ctx context.Context) ([]attribute.ServiceInfo, error) {
	resp, err := c.roundTrip(ctx, &wire.Request{Operation: wire.OpDiscover})
	if err != nil {
		return nil, err
	}
	return ServiceInfos(resp.Services), nil
}

// Read implements session.Central.
func (c *Client) Read(ctx context.Context, h attribute.Handle, env *auth.Envelope) ([]byte, error) {
	resp, err := c.roundTrip(ctx, &wire.Request{Operation: wire.OpRead, Handle: uint16(h), Auth: env})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Write implements session.Central.
func (c *Client) Write(ctx context.Context, h attribute.Handle, value []byte, env *auth.Envelope) error {
	_, err := c.roundTrip(ctx, &wire.Request{Operation: wire.OpWrite, Handle: uint16(h), Value: value, Auth: env})
	return err
}

// Subscribe enables notifications of h on this connection.
func (c *Client) Subscribe(ctx context.Context, h attribute.Handle) error {
	_, err := c.roundTrip(ctx, &wire.Request{Operation: wire.OpSubscribe, Handle: uint16(h)})
	return err
}

// Unsubscribe disables notifications of h.
func (c *Client) Unsubscribe(ctx context.Context, h attribute.Handle) error {
	_, err := c.roundTrip(ctx, &wire.Request{Operation: wire.OpUnsubscribe, Handle: uint16(h)})
	return err
}

func (c *Client) roundTrip(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	req.MessageID = c.nextID.Add(1)
	if req.MessageID == wire.NotificationMessageID {
		req.MessageID = c.nextID.Add(1)
	}

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *wire.Response, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[req.MessageID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.MessageID)
		c.mu.Unlock()
	}()

	if err := c.mc.WriteMessage(data); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Operation, err)
	}
	c.logMessage(log.DirectionOut, requestEvent(req))

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, c.closedErr()
		}
		if err := ErrorFor(resp.Status, resp.Message); err != nil {
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", session.ErrTimeout, req.Operation)
		}
		return nil, ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer close(c.done)

	var err error
	for {
		var data []byte
		data, err = c.mc.ReadMessage()
		if err != nil {
			break
		}
		c.dispatch(data)
	}

	c.mu.Lock()
	c.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { c.mc.Close() })
}

func (c *Client) dispatch(data []byte) {
	msgType, err := wire.PeekMessageType(data)
	if err != nil {
		c.config.Logger.Debug("undecodable message", "error", err)
		return
	}

	switch msgType {
	case wire.MessageTypeNotification:
		n, err := wire.DecodeNotification(data)
		if err != nil {
			c.config.Logger.Debug("undecodable notification", "error", err)
			return
		}
		handle := n.Handle
		c.logMessage(log.DirectionIn, &log.MessageEvent{
			Type:      wire.MessageTypeNotification,
			Handle:    &handle,
			ValueSize: len(n.Value),
		})
		for _, fn := range c.notifyHandlers() {
			fn(attribute.Handle(n.Handle), n.Value)
		}

	case wire.MessageTypeResponse:
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			c.config.Logger.Debug("undecodable response", "error", err)
			return
		}
		status := resp.Status
		c.logMessage(log.DirectionIn, &log.MessageEvent{
			Type:      wire.MessageTypeResponse,
			MessageID: resp.MessageID,
			Status:    &status,
			ValueSize: len(resp.Value),
		})

		c.mu.Lock()
		ch, ok := c.pending[resp.MessageID]
		c.mu.Unlock()
		if !ok {
			c.config.Logger.Debug("response without request", "messageId", resp.MessageID)
			return
		}
		ch <- resp

	default:
		c.config.Logger.Debug("unexpected message", "type", msgType)
	}
}

func (c *Client) notifyHandlers() []attribute.NotifyFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]attribute.NotifyFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.handlers[id])
	}
	return fns
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrConnectionClosed
}

func (c *Client) logMessage(dir log.Direction, ev *log.MessageEvent) {
	if c.config.ProtocolLogger == nil {
		return
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleCentral,
		RemoteAddr:   addrString(c.mc.RemoteAddr()),
		Message:      ev,
	})
}

func requestEvent(req *wire.Request) *log.MessageEvent {
	op := req.Operation
	ev := &log.MessageEvent{
		Type:          wire.MessageTypeRequest,
		MessageID:     req.MessageID,
		Operation:     &op,
		ValueSize:     len(req.Value),
		Authenticated: req.Auth != nil,
	}
	if req.Operation.NeedsHandle() {
		handle := req.Handle
		ev.Handle = &handle
	}
	return ev
}

// ServiceInfos converts discovery records into service descriptions.
// Names are not carried on the link and stay empty.
func ServiceInfos(records []wire.ServiceRecord) []attribute.ServiceInfo {
	services := make([]attribute.ServiceInfo, 0, len(records))
	for _, rec := range records {
		svc := attribute.ServiceInfo{
			Type:    rec.Type,
			Primary: rec.Primary,
			Handle:  attribute.Handle(rec.Handle),
		}
		for _, a := range rec.Attributes {
			svc.Attributes = append(svc.Attributes, attribute.AttributeInfo{
				Type:       a.Type,
				Service:    rec.Type,
				Handle:     attribute.Handle(a.Handle),
				Kind:       attribute.Kind(a.Kind),
				Format:     attribute.Format(a.Format),
				Properties: attribute.Properties(a.Properties),
			})
		}
		services = append(services, svc)
	}
	return services
}

var _ session.Central = (*Client)(nil)
