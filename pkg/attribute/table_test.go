package attribute

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

var (
	testBatteryService = uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb")
	testLevelType      = uuid.MustParse("00002a19-0000-1000-8000-00805f9b34fb")
	testLowType        = uuid.MustParse("00002bed-0000-1000-8000-00805f9b34fb")
	testNameType       = uuid.MustParse("00002a00-0000-1000-8000-00805f9b34fb")
	testListType       = uuid.MustParse("00002a01-0000-1000-8000-00805f9b34fb")
	testInfoService    = uuid.MustParse("0000180a-0000-1000-8000-00805f9b34fb")
)

func lowBattery(r Reader) (Value, error) {
	v, ok := r.Value(testLevelType)
	if !ok {
		return Value{}, ErrAttributeNotFound
	}
	n, _ := v.AsUint()
	return Bool(n < 25), nil
}

func newTestTable(t *testing.T) *Table {
	t.Helper()

	battery, err := NewService(testBatteryService, "Battery", true,
		Scalar(testLevelType, "level", FormatUint8, PropReadNotify).WithInitial(Uint8(100)),
		Virtual(testLowType, "lowBattery", FormatBool, PropReadNotify, lowBattery),
	)
	if err != nil {
		t.Fatal(err)
	}
	info, err := NewService(testInfoService, "Information", false,
		Scalar(testNameType, "name", FormatString, PropRead|PropWrite),
		ListOf(testListType, "items", FormatData, PropReadNotify),
	)
	if err != nil {
		t.Fatal(err)
	}

	table, err := Publish(battery, info)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestPublishAssignsHandles(t *testing.T) {
	table := newTestTable(t)

	services := table.Services()
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}

	want := []Handle{1, 2, 3, 4, 5, 6}
	got := []Handle{
		services[0].Handle, services[0].Attributes[0].Handle, services[0].Attributes[1].Handle,
		services[1].Handle, services[1].Attributes[0].Handle, services[1].Attributes[1].Handle,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handle %d = %d, want %d", i, got[i], want[i])
		}
	}

	info, ok := table.Lookup(testNameType)
	if !ok || info.Handle != 5 || info.Service != testInfoService {
		t.Errorf("Lookup(name) = %+v, %v", info, ok)
	}
}

func TestPublishRejectsDuplicates(t *testing.T) {
	a, _ := NewService(testBatteryService, "A", true, Scalar(testLevelType, "level", FormatUint8, PropRead))
	b, _ := NewService(testBatteryService, "B", false)
	if _, err := Publish(a, b); !errors.Is(err, ErrDuplicateService) {
		t.Errorf("expected ErrDuplicateService, got %v", err)
	}

	c, _ := NewService(testInfoService, "C", false, Scalar(testLevelType, "level", FormatUint8, PropRead))
	if _, err := Publish(a, c); !errors.Is(err, ErrDuplicateAttribute) {
		t.Errorf("expected ErrDuplicateAttribute across services, got %v", err)
	}

	_, err := NewService(testInfoService, "D", false,
		Scalar(testNameType, "x", FormatString, PropRead),
		Scalar(testNameType, "y", FormatString, PropRead),
	)
	if !errors.Is(err, ErrDuplicateAttribute) {
		t.Errorf("expected ErrDuplicateAttribute within service, got %v", err)
	}
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name string
		desc *Descriptor
	}{
		{"no type", Scalar(uuid.Nil, "x", FormatUint8, PropRead)},
		{"no format", Scalar(testNameType, "x", FormatUnknown, PropRead)},
		{"virtual without compute", &Descriptor{Type: testLowType, Kind: KindVirtual, Format: FormatBool}},
		{"writable virtual", &Descriptor{Type: testLowType, Kind: KindVirtual, Format: FormatBool, Properties: PropWrite, Compute: lowBattery}},
		{"bad initial", Scalar(testNameType, "x", FormatUint8, PropRead).WithInitial(String("no"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.desc.Validate(); !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("expected ErrInvalidDescriptor, got %v", err)
			}
		})
	}

	if Virtual(testLowType, "low", FormatBool, PropRead|PropWrite, lowBattery).Properties.CanWrite() {
		t.Error("Virtual must strip write access")
	}
}

func TestVirtualComputedOnRead(t *testing.T) {
	table := newTestTable(t)
	low, _ := table.Lookup(testLowType)

	v, err := table.Get(low.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := v.AsBool(); b {
		t.Error("expected low battery false at 100%")
	}

	if err := table.Set(testLevelType, Uint8(10)); err != nil {
		t.Fatal(err)
	}
	v, err = table.Get(low.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := v.AsBool(); !b {
		t.Error("expected low battery true at 10%")
	}
}

func TestVirtualNotWritable(t *testing.T) {
	table := newTestTable(t)
	low, _ := table.Lookup(testLowType)

	if _, err := table.Write(low.Handle, []byte{1}); !errors.Is(err, ErrNotWritable) {
		t.Errorf("Write: expected ErrNotWritable, got %v", err)
	}
	if err := table.Set(testLowType, Bool(true)); !errors.Is(err, ErrNotWritable) {
		t.Errorf("Set: expected ErrNotWritable, got %v", err)
	}
}

func TestWrite(t *testing.T) {
	table := newTestTable(t)
	name, _ := table.Lookup(testNameType)
	level, _ := table.Lookup(testLevelType)

	enc, _ := String("inverter").Encode()
	v, err := table.Write(name.Handle, enc)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "inverter" {
		t.Errorf("written value = %q", s)
	}

	if _, err := table.Write(level.Handle, []byte{1}); !errors.Is(err, ErrNotWritable) {
		t.Errorf("read-only: expected ErrNotWritable, got %v", err)
	}
	if _, err := table.Write(999, []byte{1}); !errors.Is(err, ErrAttributeNotFound) {
		t.Errorf("unknown handle: expected ErrAttributeNotFound, got %v", err)
	}
	if _, err := table.Write(name.Handle, []byte{0x09}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("bad bytes: expected ErrInvalidValue, got %v", err)
	}
}

func TestSetChecksFormat(t *testing.T) {
	table := newTestTable(t)

	if err := table.Set(testLevelType, Uint16(5)); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
	if err := table.Set(testListType, Data(nil)); !errors.Is(err, ErrFormat) {
		t.Errorf("scalar into list: expected ErrFormat, got %v", err)
	}
	if err := table.Set(uuid.New(), Uint8(1)); !errors.Is(err, ErrAttributeNotFound) {
		t.Errorf("expected ErrAttributeNotFound, got %v", err)
	}
}

func TestNotifications(t *testing.T) {
	table := newTestTable(t)
	level, _ := table.Lookup(testLevelType)
	low, _ := table.Lookup(testLowType)

	var (
		mu  sync.Mutex
		got = map[Handle]int{}
	)
	unsubscribe := table.Subscribe(func(h Handle, _ []byte) {
		mu.Lock()
		got[h]++
		mu.Unlock()
	})

	// Unchanged value does not notify.
	if err := table.Set(testLevelType, Uint8(100)); err != nil {
		t.Fatal(err)
	}
	if got[level.Handle] != 0 {
		t.Errorf("unchanged Set notified %d times", got[level.Handle])
	}

	// Dropping below the threshold notifies level and the virtual flag.
	if err := table.Set(testLevelType, Uint8(20)); err != nil {
		t.Fatal(err)
	}
	if got[level.Handle] != 1 || got[low.Handle] != 1 {
		t.Errorf("notifications = %v", got)
	}

	// Push always notifies.
	if err := table.Push(testLevelType, Uint8(20)); err != nil {
		t.Fatal(err)
	}
	if got[level.Handle] != 2 {
		t.Errorf("Push notified %d times total", got[level.Handle])
	}

	// Non-notifiable attributes never notify.
	if err := table.Set(testNameType, String("x")); err != nil {
		t.Fatal(err)
	}
	name, _ := table.Lookup(testNameType)
	if got[name.Handle] != 0 {
		t.Error("non-notifiable attribute notified")
	}

	unsubscribe()
	if err := table.Set(testLevelType, Uint8(90)); err != nil {
		t.Fatal(err)
	}
	if got[level.Handle] != 2 {
		t.Error("notified after unsubscribe")
	}
}
