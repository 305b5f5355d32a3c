package attribute

import (
	"fmt"

	"github.com/google/uuid"
)

// Service groups attributes under one type.
type Service struct {
	Type       uuid.UUID
	Name       string
	Primary    bool
	Attributes []*Descriptor
}

// NewService builds a service and checks that attribute types are unique
// within it and every descriptor is valid.
func NewService(t uuid.UUID, name string, primary bool, attrs ...*Descriptor) (*Service, error) {
	seen := make(map[uuid.UUID]struct{}, len(attrs))
	for _, d := range attrs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Type]; dup {
			return nil, fmt.Errorf("%w: %s in service %s", ErrDuplicateAttribute, d.Type, name)
		}
		seen[d.Type] = struct{}{}
	}
	return &Service{Type: t, Name: name, Primary: primary, Attributes: attrs}, nil
}

// Attribute returns the descriptor with the given type.
func (s *Service) Attribute(t uuid.UUID) (*Descriptor, bool) {
	for _, d := range s.Attributes {
		if d.Type == t {
			return d, true
		}
	}
	return nil, false
}
