// Package session resolves logical service and attribute types into link
// handles once per connection and performs reads and writes through the
// resulting cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
)

// Session errors.
var (
	ErrServiceNotFound   = errors.New("service not found")
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrTimeout           = errors.New("operation timed out")
	ErrAlreadyDiscovered = errors.New("session already discovered")
	ErrClosed            = errors.New("session closed")
)

// DefaultTimeout bounds discovery, reads and writes when the caller sets no
// deadline.
const DefaultTimeout = 10 * time.Second

// Central is the link side a session runs over.
type Central interface {
	// Discover enumerates the accessory's services and attributes.
	Discover(ctx context.Context) ([]attribute.ServiceInfo, error)

	// Read returns the encoded value at h.
	Read(ctx context.Context, h attribute.Handle, env *auth.Envelope) ([]byte, error)

	// Write stores the encoded value at h.
	Write(ctx context.Context, h attribute.Handle, value []byte, env *auth.Envelope) error
}

// Request names a service and the attributes of it a session needs.
// An empty attribute list requests every attribute of the service.
type Request struct {
	Service    uuid.UUID
	Attributes []uuid.UUID
}

// Cache maps logical types to handles. It is read-only once built.
type Cache struct {
	services map[uuid.UUID]map[uuid.UUID]attribute.AttributeInfo
	byType   map[uuid.UUID]attribute.AttributeInfo
}

// Build filters the discovered services down to the requested ones. Every
// requested service and attribute must be present.
func Build(discovered []attribute.ServiceInfo, requests ...Request) (*Cache, error) {
	found := make(map[uuid.UUID]attribute.ServiceInfo, len(discovered))
	for _, svc := range discovered {
		found[svc.Type] = svc
	}

	if len(requests) == 0 {
		for _, svc := range discovered {
			requests = append(requests, Request{Service: svc.Type})
		}
	}

	c := &Cache{
		services: make(map[uuid.UUID]map[uuid.UUID]attribute.AttributeInfo, len(requests)),
		byType:   make(map[uuid.UUID]attribute.AttributeInfo),
	}
	for _, req := range requests {
		svc, ok := found[req.Service]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, req.Service)
		}

		attrs := make(map[uuid.UUID]attribute.AttributeInfo, len(svc.Attributes))
		for _, a := range svc.Attributes {
			attrs[a.Type] = a
		}

		selected := c.services[req.Service]
		if selected == nil {
			selected = make(map[uuid.UUID]attribute.AttributeInfo)
			c.services[req.Service] = selected
		}
		wanted := req.Attributes
		if len(wanted) == 0 {
			for _, a := range svc.Attributes {
				wanted = append(wanted, a.Type)
			}
		}
		for _, t := range wanted {
			a, ok := attrs[t]
			if !ok {
				return nil, fmt.Errorf("%w: %s in service %s", ErrAttributeNotFound, t, req.Service)
			}
			selected[t] = a
			c.byType[t] = a
		}
	}
	return c, nil
}

// Handle returns the handle of an attribute of a service.
func (c *Cache) Handle(service, attr uuid.UUID) (attribute.Handle, bool) {
	if c == nil {
		return 0, false
	}
	a, ok := c.services[service][attr]
	return a.Handle, ok
}

// Attribute returns the discovered description of an attribute type.
func (c *Cache) Attribute(attr uuid.UUID) (attribute.AttributeInfo, bool) {
	if c == nil {
		return attribute.AttributeInfo{}, false
	}
	a, ok := c.byType[attr]
	return a, ok
}

// Attributes returns the cached attributes of a service.
func (c *Cache) Attributes(service uuid.UUID) []attribute.AttributeInfo {
	if c == nil {
		return nil
	}
	out := make([]attribute.AttributeInfo, 0, len(c.services[service]))
	for _, a := range c.services[service] {
		out = append(out, a)
	}
	return out
}

// Services returns the cached service types.
func (c *Cache) Services() []uuid.UUID {
	if c == nil {
		return nil
	}
	out := make([]uuid.UUID, 0, len(c.services))
	for t := range c.services {
		out = append(out, t)
	}
	return out
}

// Session is the per-connection resolver. Discovery runs exactly once;
// every access before it fails with ErrAttributeNotFound.
type Session struct {
	central Central
	timeout time.Duration

	mu     sync.RWMutex
	cache  *Cache
	closed bool
}

// New creates a session over central. A zero timeout selects
// DefaultTimeout.
func New(central Central, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{central: central, timeout: timeout}
}

// Discover enumerates the accessory and populates the cache.
func (s *Session) Discover(ctx context.Context, requests ...Request) (*Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.cache != nil {
		return nil, ErrAlreadyDiscovered
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	discovered, err := s.central.Discover(ctx)
	if err != nil {
		return nil, timeoutErr(ctx, err)
	}
	cache, err := Build(discovered, requests...)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return cache, nil
}

// Cache returns the discovered cache, or nil before discovery.
func (s *Session) Cache() *Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

// Read reads the attribute of type attr.
func (s *Session) Read(ctx context.Context, attr uuid.UUID, env *auth.Envelope) ([]byte, error) {
	h, err := s.handle(attr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	value, err := s.central.Read(ctx, h, env)
	if err != nil {
		return nil, timeoutErr(ctx, err)
	}
	return value, nil
}

// Write writes value to the attribute of type attr.
func (s *Session) Write(ctx context.Context, attr uuid.UUID, value []byte, env *auth.Envelope) error {
	h, err := s.handle(attr)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.central.Write(ctx, h, value, env); err != nil {
		return timeoutErr(ctx, err)
	}
	return nil
}

// Close drops the cache. Later accesses fail with ErrAttributeNotFound.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.closed = true
}

func (s *Session) handle(attr uuid.UUID) (attribute.Handle, error) {
	a, ok := s.Cache().Attribute(attr)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAttributeNotFound, attr)
	}
	return a.Handle, nil
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// timeoutErr reports a deadline expiry as ErrTimeout.
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
