package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/metrics"
	"github.com/solarlink/solarlink-go/pkg/server"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

// DefaultAddress is the default accessory listen address.
const DefaultAddress = ":7368"

// ErrNotNotifiable is returned when subscribing to an attribute that never
// notifies.
var ErrNotNotifiable = fmt.Errorf("%w: attribute does not notify", ErrInvalidRequest)

// ServerConfig configures the accessory link server.
type ServerConfig struct {
	// Address to listen on (e.g. ":7368"). Only used by Start.
	Address string

	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// Logger for operational messages. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives frame, message and connection events (optional).
	ProtocolLogger log.Logger
}

// Server exposes a Coordinator's attribute table to centrals.
type Server struct {
	config   ServerConfig
	coord    *server.Coordinator
	listener net.Listener

	conns   map[*serverConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a link server for coord.
func NewServer(coord *server.Coordinator, config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{
		config: config,
		coord:  coord,
		conns:  make(map[*serverConn]struct{}),
	}
}

// Start listens on the configured TCP address and serves connections until
// ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	s.config.Logger.Info("link server listening", "address", listener.Addr().String())
	return nil
}

// Stop closes the listener and every connection, then waits for the
// connection goroutines.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of connections being served.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.config.Logger.Warn("accept failed", "error", err)
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, NewStreamConn(conn, s.config.MaxMessageSize))
		}()
	}
}

// frameLogger is implemented by conns that can log their frames.
type frameLogger interface {
	SetLogger(logger log.Logger, connID string)
}

// ServeConn serves one link connection until it closes or ctx is done.
func (s *Server) ServeConn(ctx context.Context, mc MessageConn) {
	connID := uuid.New().String()
	if fl, ok := mc.(frameLogger); ok && s.config.ProtocolLogger != nil {
		fl.SetLogger(s.config.ProtocolLogger, connID)
	}

	c := &serverConn{
		srv:        s,
		mc:         mc,
		connID:     connID,
		remoteAddr: addrString(mc.RemoteAddr()),
		subscribed: make(map[attribute.Handle]struct{}),
	}
	c.sess = server.NewSession(connID, c.remoteAddr)

	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	stop := context.AfterFunc(ctx, c.close)
	defer stop()

	c.serve(ctx)

	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

// serverConn is the accessory side of one connection.
type serverConn struct {
	srv        *Server
	mc         MessageConn
	sess       *server.Session
	connID     string
	remoteAddr string

	subMu      sync.Mutex
	subscribed map[attribute.Handle]struct{}

	closeOnce sync.Once
}

func (c *serverConn) serve(ctx context.Context) {
	coord := c.srv.coord
	coord.Attach(c.sess)
	unsubscribe := coord.Table().Subscribe(c.notify)
	c.logState("", "CONNECTED")
	c.srv.config.Logger.Debug("central connected", "conn", c.connID, "remote", c.remoteAddr)

	defer func() {
		unsubscribe()
		coord.Detach(c.sess)
		c.close()
		c.logState("CONNECTED", "DISCONNECTED")
		c.srv.config.Logger.Debug("central disconnected", "conn", c.connID)
	}()

	for {
		data, err := c.mc.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				c.srv.config.Logger.Debug("link read failed", "conn", c.connID, "error", err)
			}
			return
		}
		c.handle(ctx, data)
	}
}

func (c *serverConn) close() {
	c.closeOnce.Do(func() { c.mc.Close() })
}

// handle processes one inbound message. Requests are served in order.
func (c *serverConn) handle(ctx context.Context, data []byte) {
	started := time.Now()

	msgType, err := wire.PeekMessageType(data)
	if err != nil || msgType != wire.MessageTypeRequest {
		c.logError("unexpected message", err)
		return
	}
	metrics.LinkMessages.WithLabelValues("in", msgType.String()).Inc()

	var req wire.Request
	if err := wire.Unmarshal(data, &req); err != nil {
		c.logError("undecodable request", err)
		return
	}
	c.logMessage(log.DirectionIn, requestEvent(&req))

	var resp *wire.Response
	if err := req.Validate(); err != nil {
		if req.MessageID == wire.NotificationMessageID {
			c.logError("request without message id", err)
			return
		}
		resp = errorResponse(req.MessageID, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	} else {
		resp = c.dispatch(ctx, &req)
	}
	c.send(resp, started)
}

func (c *serverConn) dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	coord := c.srv.coord
	h := attribute.Handle(req.Handle)

	switch req.Operation {
	case wire.OpDiscover:
		return &wire.Response{MessageID: req.MessageID, Services: ServiceRecords(coord.Table().Services())}

	case wire.OpRead:
		value, err := coord.Read(c.sess, h, req.Auth)
		if err != nil {
			return errorResponse(req.MessageID, err)
		}
		return &wire.Response{MessageID: req.MessageID, Value: value}

	case wire.OpWrite:
		if err := coord.OnWrite(ctx, c.sess, h, req.Value, req.Auth); err != nil {
			return errorResponse(req.MessageID, err)
		}
		return &wire.Response{MessageID: req.MessageID}

	case wire.OpSubscribe:
		info, _, ok := coord.Table().Attribute(h)
		if !ok {
			return errorResponse(req.MessageID, fmt.Errorf("%w: handle %d", attribute.ErrAttributeNotFound, h))
		}
		if !info.Properties.CanNotify() {
			return errorResponse(req.MessageID, fmt.Errorf("%w: %s", ErrNotNotifiable, info.Name))
		}
		c.subMu.Lock()
		c.subscribed[h] = struct{}{}
		c.subMu.Unlock()
		return &wire.Response{MessageID: req.MessageID}

	case wire.OpUnsubscribe:
		c.subMu.Lock()
		delete(c.subscribed, h)
		c.subMu.Unlock()
		return &wire.Response{MessageID: req.MessageID}
	}
	return errorResponse(req.MessageID, fmt.Errorf("%w: operation %s", ErrInvalidRequest, req.Operation))
}

// notify forwards a table change to the central if it subscribed to h and
// may see it.
func (c *serverConn) notify(h attribute.Handle, value []byte) {
	c.subMu.Lock()
	_, ok := c.subscribed[h]
	c.subMu.Unlock()
	if !ok || !c.srv.coord.MayNotify(c.sess, h) {
		return
	}

	data, err := wire.EncodeNotification(&wire.Notification{Handle: uint16(h), Value: value})
	if err != nil {
		c.logError("encode notification", err)
		return
	}
	if err := c.mc.WriteMessage(data); err != nil {
		c.srv.config.Logger.Debug("notification dropped", "conn", c.connID, "handle", h, "error", err)
		return
	}
	metrics.LinkMessages.WithLabelValues("out", wire.MessageTypeNotification.String()).Inc()

	handle := uint16(h)
	c.logMessage(log.DirectionOut, &log.MessageEvent{
		Type:      wire.MessageTypeNotification,
		Handle:    &handle,
		ValueSize: len(value),
	})
}

func (c *serverConn) send(resp *wire.Response, started time.Time) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		c.logError("encode response", err)
		return
	}
	if err := c.mc.WriteMessage(data); err != nil {
		c.srv.config.Logger.Debug("response dropped", "conn", c.connID, "error", err)
		return
	}
	metrics.LinkMessages.WithLabelValues("out", wire.MessageTypeResponse.String()).Inc()

	elapsed := time.Since(started)
	status := resp.Status
	c.logMessage(log.DirectionOut, &log.MessageEvent{
		Type:           wire.MessageTypeResponse,
		MessageID:      resp.MessageID,
		Status:         &status,
		ValueSize:      len(resp.Value),
		ProcessingTime: &elapsed,
	})
}

func errorResponse(id uint32, err error) *wire.Response {
	return &wire.Response{MessageID: id, Status: StatusFor(err), Message: err.Error()}
}

// ServiceRecords converts published services into discovery records.
func ServiceRecords(services []attribute.ServiceInfo) []wire.ServiceRecord {
	records := make([]wire.ServiceRecord, 0, len(services))
	for _, svc := range services {
		rec := wire.ServiceRecord{
			Type:       svc.Type,
			Primary:    svc.Primary,
			Handle:     uint16(svc.Handle),
			Attributes: make([]wire.AttributeRecord, 0, len(svc.Attributes)),
		}
		for _, a := range svc.Attributes {
			rec.Attributes = append(rec.Attributes, wire.AttributeRecord{
				Type:       a.Type,
				Handle:     uint16(a.Handle),
				Properties: uint8(a.Properties),
				Format:     uint8(a.Format),
				Kind:       uint8(a.Kind),
			})
		}
		records = append(records, rec)
	}
	return records
}

func (c *serverConn) logMessage(dir log.Direction, ev *log.MessageEvent) {
	if c.srv.config.ProtocolLogger == nil {
		return
	}
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleAccessory,
		RemoteAddr:   c.remoteAddr,
		Message:      ev,
	}
	if id, ok := c.sess.Caller(); ok {
		event.CredentialID = id.String()
	}
	c.srv.config.ProtocolLogger.Log(event)
}

func (c *serverConn) logState(oldState, newState string) {
	if c.srv.config.ProtocolLogger == nil {
		return
	}
	c.srv.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleAccessory,
		RemoteAddr:   c.remoteAddr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (c *serverConn) logError(what string, err error) {
	msg := "malformed message"
	if err != nil {
		msg = err.Error()
	}
	c.srv.config.Logger.Debug(what, "conn", c.connID, "error", msg)
	if c.srv.config.ProtocolLogger == nil {
		return
	}
	c.srv.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    log.RoleAccessory,
		RemoteAddr:   c.remoteAddr,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: msg,
			Context: what,
		},
	})
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
