package credential

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/secure"
)

// Store errors.
var (
	ErrAlreadyConfigured  = errors.New("accessory already configured")
	ErrNotConfigured      = errors.New("accessory not configured")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrNotFound           = errors.New("credential not found")
	ErrDuplicateID        = errors.New("identifier already in use")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidPermission  = errors.New("invalid permission")
	ErrOwnerIrrevocable   = errors.New("owner credential cannot be revoked")
	ErrReservedID         = errors.New("reserved identifier")
)

// Store is the credential state machine. It is safe for concurrent use;
// transitions are linearized by an internal mutex.
type Store struct {
	mu          sync.RWMutex
	persister   Persister
	setupSecret secure.Key
	state       *Snapshot
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore loads the current snapshot from p. setupSecret authenticates the
// one-time setup request signed as SetupID.
func NewStore(p Persister, setupSecret secure.Key, opts ...Option) (*Store, error) {
	s := &Store{
		persister:   p,
		setupSecret: setupSecret,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	snap.init()
	s.state = snap
	return s, nil
}

// IsConfigured reports whether the owner credential exists.
func (s *Store) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsConfigured()
}

// Secret returns the secret for a confirmed credential, a pending
// invitation, or the setup identity.
func (s *Store) Secret(id uuid.UUID) (secure.Key, bool) {
	if id == SetupID {
		return s.setupSecret, !s.setupSecret.IsZero()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.state.Secrets[id]
	return k, ok
}

// Credential returns a confirmed credential.
func (s *Store) Credential(id uuid.UUID) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.Credentials[id]
	return c, ok
}

// Invitation returns a pending invitation.
func (s *Store) Invitation(id uuid.UUID) (Invitation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.state.Invitations[id]
	return inv, ok
}

// Items returns the roster: credentials first (owner leading), then
// invitations, each ordered by creation time.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.state.Credentials)+len(s.state.Invitations))
	for _, c := range s.state.Credentials {
		items = append(items, Item{Kind: ItemCredential, Credential: &c})
	}
	for _, inv := range s.state.Invitations {
		items = append(items, Item{Kind: ItemInvitation, Invitation: &inv})
	}

	slices.SortFunc(items, func(a, b Item) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		if a.Kind == ItemCredential {
			if c := cmp.Compare(a.Permission(), b.Permission()); c != 0 {
				return c
			}
		}
		if c := createdAt(a).Compare(createdAt(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID().String(), b.ID().String())
	})
	return items
}

// Setup creates the owner credential. It succeeds at most once.
// A nil id is replaced by a random one.
func (s *Store) Setup(id uuid.UUID, name string, secret secure.Key) (Credential, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if id == SetupID {
		return Credential{}, ErrReservedID
	}

	owner := Credential{
		ID:         id,
		Name:       name,
		Permission: PermissionOwner,
		CreatedAt:  s.now(),
	}

	err := s.apply(func(snap *Snapshot) error {
		if snap.IsConfigured() {
			return ErrAlreadyConfigured
		}
		snap.Credentials[owner.ID] = owner
		snap.Secrets[owner.ID] = secret
		return nil
	})
	if err != nil {
		return Credential{}, err
	}

	s.logger.Info("accessory configured", "owner", owner.ID, "name", owner.Name)
	return owner, nil
}

// NewInvitation describes an invitation to mint.
type NewInvitation struct {
	// ID may be nil, in which case a random id is assigned.
	ID         uuid.UUID
	Name       string
	Permission Permission
	Secret     secure.Key

	// ExpiresAt is optional.
	ExpiresAt time.Time
}

// Invite mints a pending invitation on behalf of caller, which must be a
// confirmed owner or admin. Only the owner may mint admins; nobody may mint
// another owner.
func (s *Store) Invite(caller uuid.UUID, req NewInvitation) (Invitation, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.ID == SetupID {
		return Invitation{}, ErrReservedID
	}
	if !req.Permission.Valid() || req.Permission == PermissionOwner {
		return Invitation{}, fmt.Errorf("%w: %s", ErrInvalidPermission, req.Permission)
	}

	inv := Invitation{
		ID:         req.ID,
		Name:       req.Name,
		Permission: req.Permission,
		CreatedAt:  s.now(),
		ExpiresAt:  req.ExpiresAt,
	}

	err := s.apply(func(snap *Snapshot) error {
		if !snap.IsConfigured() {
			return ErrNotConfigured
		}
		inviter, ok := snap.Credentials[caller]
		if !ok || !inviter.Permission.CanManage() {
			return ErrPermissionDenied
		}
		if inv.Permission == PermissionAdmin && inviter.Permission != PermissionOwner {
			return ErrPermissionDenied
		}
		if _, ok := snap.Secrets[inv.ID]; ok {
			return ErrDuplicateID
		}
		snap.Invitations[inv.ID] = inv
		snap.Secrets[inv.ID] = req.Secret
		return nil
	})
	if err != nil {
		return Invitation{}, err
	}

	s.logger.Info("invitation created", "id", inv.ID, "name", inv.Name, "permission", inv.Permission, "by", caller)
	return inv, nil
}

// Confirm converts the pending invitation id into a credential. env must be
// signed by the invitation's pending secret; newSecret replaces it.
func (s *Store) Confirm(id uuid.UUID, env auth.Envelope, newSecret secure.Key) (Credential, error) {
	var confirmed Credential

	err := s.apply(func(snap *Snapshot) error {
		inv, ok := snap.Invitations[id]
		if !ok {
			return ErrInvitationNotFound
		}
		if env.ID() != id || !env.Verify(snap.Secrets[id]) {
			return auth.ErrInvalidAuthentication
		}
		now := s.now()
		if inv.Expired(now) {
			return ErrInvitationExpired
		}

		confirmed = inv.confirm(now)
		delete(snap.Invitations, id)
		snap.Credentials[id] = confirmed
		snap.Secrets[id] = newSecret
		return nil
	})
	if err != nil {
		return Credential{}, err
	}

	s.logger.Info("invitation confirmed", "id", id, "name", confirmed.Name, "permission", confirmed.Permission)
	return confirmed, nil
}

// Revoke deletes a credential or invitation and its secret on behalf of
// caller. The owner is irrevocable; admins can only be revoked by the owner.
func (s *Store) Revoke(caller, id uuid.UUID) error {
	err := s.apply(func(snap *Snapshot) error {
		revoker, ok := snap.Credentials[caller]
		if !ok || !revoker.Permission.CanManage() {
			return ErrPermissionDenied
		}

		cred, isCredential := snap.Credentials[id]
		inv, isInvitation := snap.Invitations[id]
		if !isCredential && !isInvitation {
			return ErrNotFound
		}

		target := inv.Permission
		if isCredential {
			target = cred.Permission
		}
		switch {
		case isCredential && target == PermissionOwner:
			return ErrOwnerIrrevocable
		case target == PermissionAdmin && revoker.Permission != PermissionOwner:
			return ErrPermissionDenied
		}

		delete(snap.Credentials, id)
		delete(snap.Invitations, id)
		delete(snap.Secrets, id)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("credential revoked", "id", id, "by", caller)
	return nil
}

// PurgeExpired removes invitations that expired before now and returns how
// many were removed.
func (s *Store) PurgeExpired() (int, error) {
	var n int
	err := s.apply(func(snap *Snapshot) error {
		n = 0
		now := s.now()
		for id, inv := range snap.Invitations {
			if inv.Expired(now) {
				delete(snap.Invitations, id)
				delete(snap.Secrets, id)
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired invitations purged", "count", n)
	}
	return n, nil
}

// apply runs fn through the persister and swaps in the durable result.
func (s *Store) apply(fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.persister.Update(fn)
	if err != nil {
		return err
	}
	next.init()
	s.state = next
	return nil
}

func createdAt(it Item) time.Time {
	if it.Credential != nil {
		return it.Credential.CreatedAt
	}
	if it.Invitation != nil {
		return it.Invitation.CreatedAt
	}
	return time.Time{}
}
