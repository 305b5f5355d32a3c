package attribute

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Value errors.
var (
	ErrInvalidValue = errors.New("invalid value")
	ErrFormat       = errors.New("format mismatch")
)

// maxVariableLength bounds strings, data and list counts.
const maxVariableLength = math.MaxUint16

// Value is a typed attribute value. The zero Value has FormatUnknown.
type Value struct {
	format Format
	item   Format // list item format
	v      any
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{format: FormatBool, v: b} }

// Uint8 returns a uint8 value. Fixed enums use this format.
func Uint8(n uint8) Value { return Value{format: FormatUint8, v: uint64(n)} }

// Uint16 returns a uint16 value.
func Uint16(n uint16) Value { return Value{format: FormatUint16, v: uint64(n)} }

// Uint32 returns a uint32 value.
func Uint32(n uint32) Value { return Value{format: FormatUint32, v: uint64(n)} }

// Uint64 returns a uint64 value.
func Uint64(n uint64) Value { return Value{format: FormatUint64, v: n} }

// Int32 returns an int32 value.
func Int32(n int32) Value { return Value{format: FormatInt32, v: int64(n)} }

// Int64 returns an int64 value.
func Int64(n int64) Value { return Value{format: FormatInt64, v: n} }

// Float32 returns a float32 value.
func Float32(f float32) Value { return Value{format: FormatFloat32, v: float64(f)} }

// Float64 returns a float64 value.
func Float64(f float64) Value { return Value{format: FormatFloat64, v: f} }

// String returns a string value.
func String(s string) Value { return Value{format: FormatString, v: s} }

// UUID returns a UUID value.
func UUID(id uuid.UUID) Value { return Value{format: FormatUUID, v: id} }

// Data returns an opaque byte value. The slice is copied.
func Data(b []byte) Value { return Value{format: FormatData, v: bytes.Clone(b)} }

// List returns a list of items that must all have the item format.
func List(item Format, items ...Value) (Value, error) {
	if !item.Valid() || item == FormatList {
		return Value{}, fmt.Errorf("%w: list of %s", ErrFormat, item)
	}
	for i, it := range items {
		if it.format != item {
			return Value{}, fmt.Errorf("%w: item %d is %s, want %s", ErrFormat, i, it.format, item)
		}
	}
	return Value{format: FormatList, item: item, v: slices.Clone(items)}, nil
}

// Format returns the value's format.
func (v Value) Format() Format { return v.format }

// ItemFormat returns the item format of a list value.
func (v Value) ItemFormat() Format { return v.item }

// IsZero reports whether v is the zero Value.
func (v Value) IsZero() bool { return v.format == FormatUnknown }

// AsBool returns the boolean value.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

// AsUint returns any unsigned integer value widened to uint64.
func (v Value) AsUint() (uint64, bool) {
	n, ok := v.v.(uint64)
	return n, ok
}

// AsInt returns any signed integer value widened to int64.
func (v Value) AsInt() (int64, bool) {
	n, ok := v.v.(int64)
	return n, ok
}

// AsFloat returns a float value widened to float64.
func (v Value) AsFloat() (float64, bool) {
	f, ok := v.v.(float64)
	return f, ok
}

// AsString returns the string value.
func (v Value) AsString() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// AsUUID returns the UUID value.
func (v Value) AsUUID() (uuid.UUID, bool) {
	id, ok := v.v.(uuid.UUID)
	return id, ok
}

// AsData returns the opaque bytes.
func (v Value) AsData() ([]byte, bool) {
	b, ok := v.v.([]byte)
	return b, ok
}

// Items returns the items of a list value.
func (v Value) Items() ([]Value, bool) {
	items, ok := v.v.([]Value)
	return items, ok
}

// Equal reports whether both values have the same format and content.
func (v Value) Equal(o Value) bool {
	if v.format != o.format || v.item != o.item {
		return false
	}
	switch a := v.v.(type) {
	case []byte:
		b, _ := o.v.([]byte)
		return bytes.Equal(a, b)
	case []Value:
		b, _ := o.v.([]Value)
		return slices.EqualFunc(a, b, Value.Equal)
	default:
		return v.v == o.v
	}
}

// GoString renders the value for debugging.
func (v Value) GoString() string {
	return fmt.Sprintf("%s(%v)", v.format, v.v)
}

// Encode returns the wire bytes of v.
func (v Value) Encode() ([]byte, error) {
	return v.appendTo(nil)
}

func (v Value) appendTo(b []byte) ([]byte, error) {
	switch v.format {
	case FormatBool:
		if v.v.(bool) {
			return append(b, 1), nil
		}
		return append(b, 0), nil
	case FormatUint8:
		return append(b, uint8(v.v.(uint64))), nil
	case FormatUint16:
		return binary.LittleEndian.AppendUint16(b, uint16(v.v.(uint64))), nil
	case FormatUint32:
		return binary.LittleEndian.AppendUint32(b, uint32(v.v.(uint64))), nil
	case FormatUint64:
		return binary.LittleEndian.AppendUint64(b, v.v.(uint64)), nil
	case FormatInt32:
		return binary.LittleEndian.AppendUint32(b, uint32(int32(v.v.(int64)))), nil
	case FormatInt64:
		return binary.LittleEndian.AppendUint64(b, uint64(v.v.(int64))), nil
	case FormatFloat32:
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v.v.(float64)))), nil
	case FormatFloat64:
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(v.v.(float64))), nil
	case FormatString:
		s := v.v.(string)
		if len(s) > maxVariableLength {
			return nil, fmt.Errorf("%w: string of %d bytes", ErrInvalidValue, len(s))
		}
		b = binary.LittleEndian.AppendUint16(b, uint16(len(s)))
		return append(b, s...), nil
	case FormatUUID:
		id := v.v.(uuid.UUID)
		return append(b, id[:]...), nil
	case FormatData:
		return append(b, v.v.([]byte)...), nil
	case FormatList:
		items := v.v.([]Value)
		if len(items) > maxVariableLength {
			return nil, fmt.Errorf("%w: list of %d items", ErrInvalidValue, len(items))
		}
		b = binary.LittleEndian.AppendUint16(b, uint16(len(items)))
		for i, it := range items {
			enc, err := it.Encode()
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			if len(enc) > maxVariableLength {
				return nil, fmt.Errorf("%w: item %d has %d bytes", ErrInvalidValue, i, len(enc))
			}
			b = binary.LittleEndian.AppendUint16(b, uint16(len(enc)))
			b = append(b, enc...)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode %s", ErrFormat, v.format)
	}
}

// Decode parses b as a scalar of format f.
func Decode(f Format, b []byte) (Value, error) {
	if size := f.Size(); size > 0 && len(b) != size {
		return Value{}, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidValue, f, size, len(b))
	}

	switch f {
	case FormatBool:
		switch b[0] {
		case 0:
			return Bool(false), nil
		case 1:
			return Bool(true), nil
		}
		return Value{}, fmt.Errorf("%w: bool byte 0x%02x", ErrInvalidValue, b[0])
	case FormatUint8:
		return Uint8(b[0]), nil
	case FormatUint16:
		return Uint16(binary.LittleEndian.Uint16(b)), nil
	case FormatUint32:
		return Uint32(binary.LittleEndian.Uint32(b)), nil
	case FormatUint64:
		return Uint64(binary.LittleEndian.Uint64(b)), nil
	case FormatInt32:
		return Int32(int32(binary.LittleEndian.Uint32(b))), nil
	case FormatInt64:
		return Int64(int64(binary.LittleEndian.Uint64(b))), nil
	case FormatFloat32:
		return Float32(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case FormatFloat64:
		return Float64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case FormatString:
		if len(b) < 2 {
			return Value{}, fmt.Errorf("%w: string header truncated", ErrInvalidValue)
		}
		n := int(binary.LittleEndian.Uint16(b))
		if len(b)-2 != n {
			return Value{}, fmt.Errorf("%w: string declares %d bytes, has %d", ErrInvalidValue, n, len(b)-2)
		}
		if !utf8.Valid(b[2:]) {
			return Value{}, fmt.Errorf("%w: string is not UTF-8", ErrInvalidValue)
		}
		return String(string(b[2:])), nil
	case FormatUUID:
		id, err := uuid.FromBytes(b)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return UUID(id), nil
	case FormatData:
		return Data(b), nil
	default:
		return Value{}, fmt.Errorf("%w: cannot decode %s as scalar", ErrFormat, f)
	}
}

// DecodeList parses b as a list whose items have format item.
func DecodeList(item Format, b []byte) (Value, error) {
	if len(b) < 2 {
		return Value{}, fmt.Errorf("%w: list header truncated", ErrInvalidValue)
	}
	count := int(binary.LittleEndian.Uint16(b))
	b = b[2:]

	items := make([]Value, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < 2 {
			return Value{}, fmt.Errorf("%w: item %d header truncated", ErrInvalidValue, i)
		}
		n := int(binary.LittleEndian.Uint16(b))
		if len(b)-2 < n {
			return Value{}, fmt.Errorf("%w: item %d truncated", ErrInvalidValue, i)
		}
		it, err := Decode(item, b[2:2+n])
		if err != nil {
			return Value{}, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, it)
		b = b[2+n:]
	}
	if len(b) != 0 {
		return Value{}, fmt.Errorf("%w: %d trailing bytes after list", ErrInvalidValue, len(b))
	}
	return List(item, items...)
}
