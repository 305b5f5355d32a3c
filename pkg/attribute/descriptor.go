package attribute

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Model errors.
var (
	ErrNotWritable         = errors.New("attribute is not writable")
	ErrNotReadable         = errors.New("attribute is not readable")
	ErrAttributeNotFound   = errors.New("attribute not found")
	ErrDuplicateAttribute  = errors.New("duplicate attribute type")
	ErrDuplicateService    = errors.New("duplicate service type")
	ErrInvalidDescriptor   = errors.New("invalid attribute descriptor")
	ErrHandleSpaceExceeded = errors.New("handle space exceeded")
)

// Kind distinguishes stored from computed attributes.
type Kind uint8

// Attribute kinds.
const (
	KindScalar Kind = iota
	KindList
	KindVirtual
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Reader gives virtual attributes access to stored values.
type Reader interface {
	Value(attrType uuid.UUID) (Value, bool)
}

// ComputeFunc derives a virtual attribute's value.
type ComputeFunc func(r Reader) (Value, error)

// Descriptor declares one attribute.
type Descriptor struct {
	// Type is the stable logical identifier.
	Type uuid.UUID

	// Name is a human-readable name for logs and tooling.
	Name string

	// Kind selects scalar, list or virtual behavior.
	Kind Kind

	// Format is the scalar format, or the item format for lists.
	Format Format

	// Properties are the access rules.
	Properties Properties

	// Initial is the starting value. Zero means the format's zero value.
	Initial Value

	// Compute derives the value of a virtual attribute.
	Compute ComputeFunc
}

// Scalar declares a stored single-value attribute.
func Scalar(t uuid.UUID, name string, f Format, p Properties) *Descriptor {
	return &Descriptor{Type: t, Name: name, Kind: KindScalar, Format: f, Properties: p}
}

// ListOf declares a stored list attribute with items of format item.
func ListOf(t uuid.UUID, name string, item Format, p Properties) *Descriptor {
	return &Descriptor{Type: t, Name: name, Kind: KindList, Format: item, Properties: p}
}

// Virtual declares a computed read-only attribute.
func Virtual(t uuid.UUID, name string, f Format, p Properties, fn ComputeFunc) *Descriptor {
	return &Descriptor{Type: t, Name: name, Kind: KindVirtual, Format: f, Properties: p &^ PropWrite, Compute: fn}
}

// WithInitial sets the starting value and returns d.
func (d *Descriptor) WithInitial(v Value) *Descriptor {
	d.Initial = v
	return d
}

// Validate checks the descriptor is internally consistent.
func (d *Descriptor) Validate() error {
	switch {
	case d.Type == uuid.Nil:
		return fmt.Errorf("%w: %q has no type", ErrInvalidDescriptor, d.Name)
	case !d.Format.Valid() || d.Format == FormatList:
		return fmt.Errorf("%w: %q has format %s", ErrInvalidDescriptor, d.Name, d.Format)
	case d.Kind == KindVirtual && d.Compute == nil:
		return fmt.Errorf("%w: virtual %q has no compute function", ErrInvalidDescriptor, d.Name)
	case d.Kind == KindVirtual && d.Properties.CanWrite():
		return fmt.Errorf("%w: virtual %q is writable", ErrInvalidDescriptor, d.Name)
	case !d.Initial.IsZero():
		if err := d.Check(d.Initial); err != nil {
			return fmt.Errorf("%w: initial value of %q: %v", ErrInvalidDescriptor, d.Name, err)
		}
	}
	return nil
}

// Check reports whether v fits the descriptor's format.
func (d *Descriptor) Check(v Value) error {
	if d.Kind == KindList {
		if v.Format() != FormatList || v.ItemFormat() != d.Format {
			return fmt.Errorf("%w: %q wants list of %s, got %s", ErrFormat, d.Name, d.Format, v.Format())
		}
		return nil
	}
	if v.Format() != d.Format {
		return fmt.Errorf("%w: %q wants %s, got %s", ErrFormat, d.Name, d.Format, v.Format())
	}
	return nil
}

// Decode parses wire bytes according to the descriptor.
func (d *Descriptor) Decode(b []byte) (Value, error) {
	if d.Kind == KindList {
		return DecodeList(d.Format, b)
	}
	return Decode(d.Format, b)
}

// zero returns the default value for the descriptor.
func (d *Descriptor) zero() Value {
	if !d.Initial.IsZero() {
		return d.Initial
	}
	switch d.Format {
	case FormatBool:
		return Bool(false)
	case FormatUint8:
		return Uint8(0)
	case FormatUint16:
		return Uint16(0)
	case FormatUint32:
		return Uint32(0)
	case FormatUint64:
		return Uint64(0)
	case FormatInt32:
		return Int32(0)
	case FormatInt64:
		return Int64(0)
	case FormatFloat32:
		return Float32(0)
	case FormatFloat64:
		return Float64(0)
	case FormatString:
		return String("")
	case FormatUUID:
		return UUID(uuid.Nil)
	default:
		return Data(nil)
	}
}
