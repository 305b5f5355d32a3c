package credential

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/secure"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(NewMemoryStore(), secure.NewKey())
	require.NoError(t, err)
	return s
}

func setupOwner(t *testing.T, s *Store) (Credential, secure.Key) {
	t.Helper()
	secret := secure.NewKey()
	owner, err := s.Setup(uuid.New(), "Owner", secret)
	require.NoError(t, err)
	return owner, secret
}

func TestSetupOnce(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.IsConfigured())

	owner, _ := setupOwner(t, s)
	assert.True(t, s.IsConfigured())
	assert.Equal(t, PermissionOwner, owner.Permission)

	_, err := s.Setup(uuid.New(), "Second", secure.NewKey())
	assert.ErrorIs(t, err, ErrAlreadyConfigured)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, owner.ID, items[0].ID())
}

func TestSetupConcurrent(t *testing.T) {
	s := newTestStore(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Setup(uuid.New(), "Owner", secure.NewKey()); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAlreadyConfigured)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, s.Items(), 1)
}

func TestSetupReservedID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Setup(SetupID, "Owner", secure.NewKey())
	assert.ErrorIs(t, err, ErrReservedID)
	assert.False(t, s.IsConfigured())
}

func TestSetupSecretLookup(t *testing.T) {
	setupSecret := secure.NewKey()
	s, err := NewStore(NewMemoryStore(), setupSecret)
	require.NoError(t, err)

	k, ok := s.Secret(SetupID)
	assert.True(t, ok)
	assert.Equal(t, setupSecret, k)

	empty, err := NewStore(NewMemoryStore(), secure.Key{})
	require.NoError(t, err)
	_, ok = empty.Secret(SetupID)
	assert.False(t, ok)
}

func TestInvite(t *testing.T) {
	t.Run("requires configured", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Invite(uuid.New(), NewInvitation{Name: "Guest", Permission: PermissionUser, Secret: secure.NewKey()})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("creates pending", func(t *testing.T) {
		s := newTestStore(t)
		owner, _ := setupOwner(t, s)
		secret := secure.NewKey()

		inv, err := s.Invite(owner.ID, NewInvitation{Name: "Guest", Permission: PermissionUser, Secret: secret})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, inv.ID)

		got, ok := s.Invitation(inv.ID)
		require.True(t, ok)
		assert.Equal(t, "Guest", got.Name)

		k, ok := s.Secret(inv.ID)
		require.True(t, ok)
		assert.Equal(t, secret, k)

		_, ok = s.Credential(inv.ID)
		assert.False(t, ok, "invitation must not be a credential yet")

		items := s.Items()
		require.Len(t, items, 2)
		assert.Equal(t, ItemCredential, items[0].Kind)
		assert.True(t, items[1].Pending())
	})

	t.Run("permission rules", func(t *testing.T) {
		s := newTestStore(t)
		owner, _ := setupOwner(t, s)

		_, err := s.Invite(owner.ID, NewInvitation{Name: "Root", Permission: PermissionOwner})
		assert.ErrorIs(t, err, ErrInvalidPermission)

		_, err = s.Invite(uuid.New(), NewInvitation{Name: "X", Permission: PermissionUser})
		assert.ErrorIs(t, err, ErrPermissionDenied)

		admin := confirmInvite(t, s, owner.ID, PermissionAdmin)
		user := confirmInvite(t, s, owner.ID, PermissionUser)

		_, err = s.Invite(admin.ID, NewInvitation{Name: "Other", Permission: PermissionUser})
		assert.NoError(t, err, "admin may invite users")

		_, err = s.Invite(admin.ID, NewInvitation{Name: "Other admin", Permission: PermissionAdmin})
		assert.ErrorIs(t, err, ErrPermissionDenied, "only owner mints admins")

		_, err = s.Invite(user.ID, NewInvitation{Name: "Friend", Permission: PermissionUser})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := newTestStore(t)
		owner, _ := setupOwner(t, s)

		_, err := s.Invite(owner.ID, NewInvitation{ID: owner.ID, Name: "Clash", Permission: PermissionUser})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})
}

// confirmInvite invites and confirms a credential, returning it.
func confirmInvite(t *testing.T, s *Store, by uuid.UUID, perm Permission) Credential {
	t.Helper()
	pending := secure.NewKey()
	inv, err := s.Invite(by, NewInvitation{Name: perm.String(), Permission: perm, Secret: pending})
	require.NoError(t, err)
	c, err := s.Confirm(inv.ID, auth.NewEnvelope(pending, inv.ID), secure.NewKey())
	require.NoError(t, err)
	return c
}

func TestConfirm(t *testing.T) {
	s := newTestStore(t)
	owner, _ := setupOwner(t, s)

	secretB := secure.NewKey()
	inv, err := s.Invite(owner.ID, NewInvitation{Name: "Guest", Permission: PermissionUser, Secret: secretB})
	require.NoError(t, err)

	t.Run("unknown invitation", func(t *testing.T) {
		id := uuid.New()
		_, err := s.Confirm(id, auth.NewEnvelope(secretB, id), secure.NewKey())
		assert.ErrorIs(t, err, ErrInvitationNotFound)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := s.Confirm(inv.ID, auth.NewEnvelope(secure.NewKey(), inv.ID), secure.NewKey())
		assert.ErrorIs(t, err, auth.ErrInvalidAuthentication)
		_, ok := s.Invitation(inv.ID)
		assert.True(t, ok, "failed confirm must leave the invitation")
	})

	t.Run("envelope for other id", func(t *testing.T) {
		_, err := s.Confirm(inv.ID, auth.NewEnvelope(secretB, owner.ID), secure.NewKey())
		assert.ErrorIs(t, err, auth.ErrInvalidAuthentication)
	})

	t.Run("success rotates secret", func(t *testing.T) {
		secretC := secure.NewKey()
		c, err := s.Confirm(inv.ID, auth.NewEnvelope(secretB, inv.ID), secretC)
		require.NoError(t, err)
		assert.Equal(t, inv.ID, c.ID)
		assert.Equal(t, PermissionUser, c.Permission)

		k, ok := s.Secret(inv.ID)
		require.True(t, ok)
		assert.Equal(t, secretC, k)
		assert.NotEqual(t, secretB, k)

		_, ok = s.Invitation(inv.ID)
		assert.False(t, ok)
	})

	t.Run("replay fails", func(t *testing.T) {
		_, err := s.Confirm(inv.ID, auth.NewEnvelope(secretB, inv.ID), secure.NewKey())
		assert.ErrorIs(t, err, ErrInvitationNotFound)
	})
}

func TestConfirmExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s, err := NewStore(NewMemoryStore(), secure.NewKey(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	owner, _ := setupOwner(t, s)

	pending := secure.NewKey()
	inv, err := s.Invite(owner.ID, NewInvitation{
		Name:       "Temp",
		Permission: PermissionUser,
		Secret:     pending,
		ExpiresAt:  now.Add(time.Hour),
	})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = s.Confirm(inv.ID, auth.NewEnvelope(pending, inv.ID), secure.NewKey())
	assert.ErrorIs(t, err, ErrInvitationExpired)

	n, err := s.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok := s.Secret(inv.ID)
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	s := newTestStore(t)
	owner, _ := setupOwner(t, s)

	t.Run("unknown", func(t *testing.T) {
		assert.ErrorIs(t, s.Revoke(owner.ID, uuid.New()), ErrNotFound)
	})

	t.Run("pending invitation", func(t *testing.T) {
		inv, err := s.Invite(owner.ID, NewInvitation{Name: "Guest", Permission: PermissionUser, Secret: secure.NewKey()})
		require.NoError(t, err)

		require.NoError(t, s.Revoke(owner.ID, inv.ID))
		_, ok := s.Secret(inv.ID)
		assert.False(t, ok)
		_, ok = s.Invitation(inv.ID)
		assert.False(t, ok)
	})

	t.Run("confirmed credential", func(t *testing.T) {
		user := confirmInvite(t, s, owner.ID, PermissionUser)
		require.NoError(t, s.Revoke(owner.ID, user.ID))

		_, ok := s.Secret(user.ID)
		assert.False(t, ok)
		for _, it := range s.Items() {
			assert.NotEqual(t, user.ID, it.ID())
		}
	})

	t.Run("owner irrevocable", func(t *testing.T) {
		admin := confirmInvite(t, s, owner.ID, PermissionAdmin)
		assert.ErrorIs(t, s.Revoke(owner.ID, owner.ID), ErrOwnerIrrevocable)
		assert.ErrorIs(t, s.Revoke(admin.ID, owner.ID), ErrOwnerIrrevocable)
	})

	t.Run("caller rules", func(t *testing.T) {
		admin := confirmInvite(t, s, owner.ID, PermissionAdmin)
		otherAdmin := confirmInvite(t, s, owner.ID, PermissionAdmin)
		user := confirmInvite(t, s, owner.ID, PermissionUser)

		assert.ErrorIs(t, s.Revoke(user.ID, admin.ID), ErrPermissionDenied)
		assert.ErrorIs(t, s.Revoke(admin.ID, otherAdmin.ID), ErrPermissionDenied)
		assert.NoError(t, s.Revoke(admin.ID, user.ID))
	})
}

func TestScenario(t *testing.T) {
	s := newTestStore(t)

	secretA := secure.NewKey()
	owner, err := s.Setup(uuid.New(), "Owner", secretA)
	require.NoError(t, err)
	require.Len(t, s.Items(), 1)

	secretB := secure.NewKey()
	inv, err := s.Invite(owner.ID, NewInvitation{Name: "Guest", Permission: PermissionUser, Secret: secretB})
	require.NoError(t, err)
	require.Len(t, s.Items(), 2)

	secretC := secure.NewKey()
	_, err = s.Confirm(inv.ID, auth.NewEnvelope(secretB, inv.ID), secretC)
	require.NoError(t, err)

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, PermissionUser, items[1].Permission())
	assert.False(t, items[1].Pending())

	stored, ok := s.Secret(inv.ID)
	require.True(t, ok)
	assert.False(t, auth.NewEnvelope(secretB, inv.ID).Verify(stored))
	assert.True(t, auth.NewEnvelope(secretC, inv.ID).Verify(stored))
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authentication.json")

	s, err := NewStore(NewFileStore(path), secure.NewKey())
	require.NoError(t, err)
	owner, secret := setupOwner(t, s)
	inv, err := s.Invite(owner.ID, NewInvitation{Name: "Guest", Permission: PermissionUser, Secret: secure.NewKey()})
	require.NoError(t, err)

	reloaded, err := NewStore(NewFileStore(path), secure.NewKey())
	require.NoError(t, err)
	assert.True(t, reloaded.IsConfigured())

	k, ok := reloaded.Secret(owner.ID)
	require.True(t, ok)
	assert.Equal(t, secret, k)
	_, ok = reloaded.Invitation(inv.ID)
	assert.True(t, ok)
}

// mockPersister is a mockery-style Persister.
type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) Load() (*Snapshot, error) {
	args := m.Called()
	snap, _ := args.Get(0).(*Snapshot)
	return snap, args.Error(1)
}

func (m *mockPersister) Update(fn func(*Snapshot) error) (*Snapshot, error) {
	args := m.Called(fn)
	snap, _ := args.Get(0).(*Snapshot)
	return snap, args.Error(1)
}

func TestPersistFailureAborts(t *testing.T) {
	p := new(mockPersister)
	p.On("Load").Return(&Snapshot{}, nil)
	diskFull := errors.New("no space left on device")
	p.On("Update", mock.Anything).Return(nil, diskFull)

	s, err := NewStore(p, secure.NewKey())
	require.NoError(t, err)

	_, err = s.Setup(uuid.New(), "Owner", secure.NewKey())
	assert.ErrorIs(t, err, diskFull)
	assert.False(t, s.IsConfigured())
	assert.Empty(t, s.Items())
	p.AssertExpectations(t)
}

func TestLoadFailure(t *testing.T) {
	p := new(mockPersister)
	p.On("Load").Return(nil, errors.New("permission denied"))

	_, err := NewStore(p, secure.NewKey())
	assert.Error(t, err)
}
