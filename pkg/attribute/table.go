package attribute

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Handle is the transport address of a service or attribute.
type Handle uint16

// ServiceInfo describes a published service.
type ServiceInfo struct {
	Type       uuid.UUID
	Name       string
	Primary    bool
	Handle     Handle
	Attributes []AttributeInfo
}

// AttributeInfo describes a published attribute.
type AttributeInfo struct {
	Type       uuid.UUID
	Name       string
	Service    uuid.UUID
	Handle     Handle
	Kind       Kind
	Format     Format
	Properties Properties
}

// NotifyFunc receives the encoded value of a notifiable attribute whenever
// it changes.
type NotifyFunc func(h Handle, value []byte)

type entry struct {
	info  AttributeInfo
	desc  *Descriptor
	value Value
}

type notification struct {
	handle Handle
	data   []byte
}

// Table holds the published services, their handles and current values.
// It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	services []ServiceInfo
	byHandle map[Handle]*entry
	byType   map[uuid.UUID]*entry
	virtuals []*entry

	subMu       sync.RWMutex
	subscribers map[int]NotifyFunc
	nextSub     int
}

// Publish assigns handles to the services in order and returns the table.
// Service types must be unique, and attribute types must be unique across
// the whole table so attributes can be addressed by type alone.
func Publish(services ...*Service) (*Table, error) {
	t := &Table{
		byHandle:    make(map[Handle]*entry),
		byType:      make(map[uuid.UUID]*entry),
		subscribers: make(map[int]NotifyFunc),
	}

	seenServices := make(map[uuid.UUID]struct{}, len(services))
	next := 1
	assign := func() (Handle, error) {
		if next > math.MaxUint16 {
			return 0, ErrHandleSpaceExceeded
		}
		h := Handle(next)
		next++
		return h, nil
	}

	for _, svc := range services {
		if _, dup := seenServices[svc.Type]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateService, svc.Type)
		}
		seenServices[svc.Type] = struct{}{}

		sh, err := assign()
		if err != nil {
			return nil, err
		}
		info := ServiceInfo{Type: svc.Type, Name: svc.Name, Primary: svc.Primary, Handle: sh}

		for _, d := range svc.Attributes {
			if err := d.Validate(); err != nil {
				return nil, err
			}
			if _, dup := t.byType[d.Type]; dup {
				return nil, fmt.Errorf("%w: %s (%s)", ErrDuplicateAttribute, d.Type, d.Name)
			}
			ah, err := assign()
			if err != nil {
				return nil, err
			}

			e := &entry{
				info: AttributeInfo{
					Type:       d.Type,
					Name:       d.Name,
					Service:    svc.Type,
					Handle:     ah,
					Kind:       d.Kind,
					Format:     d.Format,
					Properties: d.Properties,
				},
				desc: d,
			}
			switch d.Kind {
			case KindList:
				if d.Initial.IsZero() {
					e.value, _ = List(d.Format)
				} else {
					e.value = d.Initial
				}
			case KindVirtual:
				t.virtuals = append(t.virtuals, e)
			default:
				e.value = d.zero()
			}

			t.byHandle[ah] = e
			t.byType[d.Type] = e
			info.Attributes = append(info.Attributes, e.info)
		}
		t.services = append(t.services, info)
	}

	for _, e := range t.virtuals {
		if v, err := e.desc.Compute(t); err == nil {
			e.value = v
		}
	}
	return t, nil
}

// Services returns the published services with their handles.
func (t *Table) Services() []ServiceInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ServiceInfo, len(t.services))
	for i, s := range t.services {
		s.Attributes = append([]AttributeInfo(nil), s.Attributes...)
		out[i] = s
	}
	return out
}

// Lookup returns the attribute info for a type.
func (t *Table) Lookup(attrType uuid.UUID) (AttributeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.byType[attrType]
	if !ok {
		return AttributeInfo{}, false
	}
	return e.info, true
}

// Attribute returns the attribute info and descriptor for a handle.
func (t *Table) Attribute(h Handle) (AttributeInfo, *Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.byHandle[h]
	if !ok {
		return AttributeInfo{}, nil, false
	}
	return e.info, e.desc, true
}

// Value returns the current value of an attribute by type. Virtual
// attributes are computed.
func (t *Table) Value(attrType uuid.UUID) (Value, bool) {
	t.mu.RLock()
	e, ok := t.byType[attrType]
	var v Value
	if ok {
		v = e.value
	}
	t.mu.RUnlock()

	if !ok {
		return Value{}, false
	}
	if e.desc.Kind == KindVirtual {
		computed, err := e.desc.Compute(t)
		if err != nil {
			return Value{}, false
		}
		return computed, true
	}
	return v, true
}

// Get returns the value at h for an external read.
func (t *Table) Get(h Handle) (Value, error) {
	t.mu.RLock()
	e, ok := t.byHandle[h]
	t.mu.RUnlock()

	if !ok {
		return Value{}, fmt.Errorf("%w: handle %d", ErrAttributeNotFound, h)
	}
	if !e.info.Properties.CanRead() {
		return Value{}, fmt.Errorf("%w: %s", ErrNotReadable, e.info.Name)
	}

	v, ok := t.Value(e.info.Type)
	if !ok {
		return Value{}, fmt.Errorf("%w: %s could not be computed", ErrInvalidValue, e.info.Name)
	}
	return v, nil
}

// Read returns the encoded value at h for an external read.
func (t *Table) Read(h Handle) ([]byte, error) {
	v, err := t.Get(h)
	if err != nil {
		return nil, err
	}
	return v.Encode()
}

// Write decodes data and stores it at h on behalf of a remote writer.
// Virtual and read-only attributes reject the write with ErrNotWritable.
func (t *Table) Write(h Handle, data []byte) (Value, error) {
	t.mu.RLock()
	e, ok := t.byHandle[h]
	t.mu.RUnlock()

	if !ok {
		return Value{}, fmt.Errorf("%w: handle %d", ErrAttributeNotFound, h)
	}
	if !e.info.Properties.CanWrite() || e.desc.Kind == KindVirtual {
		return Value{}, fmt.Errorf("%w: %s", ErrNotWritable, e.info.Name)
	}

	v, err := e.desc.Decode(data)
	if err != nil {
		return Value{}, err
	}
	if err := t.store(e.info.Type, v, false); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Set replaces the value of an attribute by type and notifies subscribers
// when the value changed. It is the internal update path and ignores write
// access; virtual attributes still reject it.
func (t *Table) Set(attrType uuid.UUID, v Value) error {
	return t.store(attrType, v, false)
}

// Push is Set, but notifies even when the value is unchanged. It is used
// for stream-like attributes such as response chunks.
func (t *Table) Push(attrType uuid.UUID, v Value) error {
	return t.store(attrType, v, true)
}

func (t *Table) store(attrType uuid.UUID, v Value, always bool) error {
	t.mu.Lock()
	e, ok := t.byType[attrType]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAttributeNotFound, attrType)
	}
	if e.desc.Kind == KindVirtual {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is virtual", ErrNotWritable, e.info.Name)
	}
	if err := e.desc.Check(v); err != nil {
		t.mu.Unlock()
		return err
	}

	changed := !e.value.Equal(v)
	e.value = v
	var pending []notification
	if (changed || always) && e.info.Properties.CanNotify() {
		data, err := v.Encode()
		if err != nil {
			t.mu.Unlock()
			return err
		}
		pending = append(pending, notification{e.info.Handle, data})
	}
	virtuals := t.virtuals
	t.mu.Unlock()

	if changed {
		pending = append(pending, t.recomputeVirtuals(virtuals)...)
	}
	t.notify(pending)
	return nil
}

// recomputeVirtuals returns notifications for notifiable virtual attributes
// whose computed value differs from the last one published.
func (t *Table) recomputeVirtuals(virtuals []*entry) []notification {
	var out []notification
	for _, e := range virtuals {
		if !e.info.Properties.CanNotify() {
			continue
		}
		v, err := e.desc.Compute(t)
		if err != nil {
			continue
		}

		t.mu.Lock()
		changed := !e.value.Equal(v)
		e.value = v
		t.mu.Unlock()

		if !changed {
			continue
		}
		if data, err := v.Encode(); err == nil {
			out = append(out, notification{e.info.Handle, data})
		}
	}
	return out
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (t *Table) Subscribe(fn NotifyFunc) (unsubscribe func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = fn

	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subscribers, id)
	}
}

func (t *Table) notify(pending []notification) {
	if len(pending) == 0 {
		return
	}

	t.subMu.RLock()
	ids := make([]int, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]NotifyFunc, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, t.subscribers[id])
	}
	t.subMu.RUnlock()

	for _, n := range pending {
		for _, fn := range subs {
			fn(n.handle, n.data)
		}
	}
}

var _ Reader = (*Table)(nil)
