package credential

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SetupID is the well-known identity used to sign the one-time setup
// request. Its secret is the accessory's configured setup secret.
var SetupID = uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

// Permission is the privilege level of a credential.
type Permission uint8

// Permission levels.
const (
	PermissionOwner Permission = iota
	PermissionAdmin
	PermissionUser
)

var permissionNames = []string{"owner", "admin", "user"}

// String returns the permission name.
func (p Permission) String() string {
	if int(p) < len(permissionNames) {
		return permissionNames[p]
	}
	return fmt.Sprintf("Permission(%d)", p)
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return int(p) < len(permissionNames)
}

// CanManage reports whether p may invite and revoke.
func (p Permission) CanManage() bool {
	return p == PermissionOwner || p == PermissionAdmin
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPermission, p)
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(b []byte) error {
	perm, err := ParsePermission(string(b))
	if err != nil {
		return err
	}
	*p = perm
	return nil
}

// ParsePermission parses a permission name.
func ParsePermission(s string) (Permission, error) {
	for i, name := range permissionNames {
		if name == s {
			return Permission(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
}

// Credential is a confirmed identity.
type Credential struct {
	ID         uuid.UUID  `cbor:"1,keyasint" json:"id"`
	Name       string     `cbor:"2,keyasint" json:"name"`
	Permission Permission `cbor:"3,keyasint" json:"permission"`
	CreatedAt  time.Time  `cbor:"4,keyasint" json:"createdAt"`
}

// Invitation is a minted credential that has not been confirmed yet.
type Invitation struct {
	ID         uuid.UUID  `cbor:"1,keyasint" json:"id"`
	Name       string     `cbor:"2,keyasint" json:"name"`
	Permission Permission `cbor:"3,keyasint" json:"permission"`
	CreatedAt  time.Time  `cbor:"4,keyasint" json:"createdAt"`

	// ExpiresAt is zero when the invitation never expires.
	ExpiresAt time.Time `cbor:"5,keyasint" json:"expiresAt,omitzero"`
}

// Expired reports whether the invitation expired at t.
func (i Invitation) Expired(t time.Time) bool {
	return !i.ExpiresAt.IsZero() && !t.Before(i.ExpiresAt)
}

// confirm converts the invitation into a credential with the same id and
// permission.
func (i Invitation) confirm(at time.Time) Credential {
	return Credential{
		ID:         i.ID,
		Name:       i.Name,
		Permission: i.Permission,
		CreatedAt:  at,
	}
}

// ItemKind tags a roster item.
type ItemKind uint8

// Roster item kinds.
const (
	ItemCredential ItemKind = 1
	ItemInvitation ItemKind = 2
)

// Item is one entry of the published roster: either a Credential or an
// Invitation. It never carries a secret.
type Item struct {
	Kind       ItemKind    `cbor:"1,keyasint" json:"kind"`
	Credential *Credential `cbor:"2,keyasint,omitempty" json:"credential,omitempty"`
	Invitation *Invitation `cbor:"3,keyasint,omitempty" json:"invitation,omitempty"`
}

// ID returns the identifier of the wrapped record.
func (it Item) ID() uuid.UUID {
	switch {
	case it.Credential != nil:
		return it.Credential.ID
	case it.Invitation != nil:
		return it.Invitation.ID
	}
	return uuid.Nil
}

// Name returns the display name of the wrapped record.
func (it Item) Name() string {
	switch {
	case it.Credential != nil:
		return it.Credential.Name
	case it.Invitation != nil:
		return it.Invitation.Name
	}
	return ""
}

// Permission returns the permission of the wrapped record.
func (it Item) Permission() Permission {
	switch {
	case it.Credential != nil:
		return it.Credential.Permission
	case it.Invitation != nil:
		return it.Invitation.Permission
	}
	return PermissionUser
}

// Pending reports whether the item is an unconfirmed invitation.
func (it Item) Pending() bool {
	return it.Kind == ItemInvitation
}
