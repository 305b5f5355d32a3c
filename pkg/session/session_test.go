package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/secure"
)

type mockCentral struct {
	mock.Mock
}

func (m *mockCentral) Discover(ctx context.Context) ([]attribute.ServiceInfo, error) {
	args := m.Called(ctx)
	services, _ := args.Get(0).([]attribute.ServiceInfo)
	return services, args.Error(1)
}

func (m *mockCentral) Read(ctx context.Context, h attribute.Handle, env *auth.Envelope) ([]byte, error) {
	args := m.Called(ctx, h, env)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *mockCentral) Write(ctx context.Context, h attribute.Handle, value []byte, env *auth.Envelope) error {
	args := m.Called(ctx, h, value, env)
	return args.Error(0)
}

var (
	serviceA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	serviceB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	attrA1   = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	attrA2   = uuid.MustParse("00000000-0000-0000-0000-0000000000a2")
	attrB1   = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
)

func discovered() []attribute.ServiceInfo {
	return []attribute.ServiceInfo{
		{Type: serviceA, Handle: 1, Attributes: []attribute.AttributeInfo{
			{Type: attrA1, Service: serviceA, Handle: 2, Properties: attribute.PropRead},
			{Type: attrA2, Service: serviceA, Handle: 3, Properties: attribute.PropWriteAuth},
		}},
		{Type: serviceB, Handle: 4, Attributes: []attribute.AttributeInfo{
			{Type: attrB1, Service: serviceB, Handle: 5, Properties: attribute.PropReadNotify},
		}},
	}
}

func TestBuild(t *testing.T) {
	t.Run("everything", func(t *testing.T) {
		c, err := Build(discovered())
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{serviceA, serviceB}, c.Services())

		h, ok := c.Handle(serviceB, attrB1)
		assert.True(t, ok)
		assert.Equal(t, attribute.Handle(5), h)
		assert.Len(t, c.Attributes(serviceA), 2)
	})

	t.Run("subset", func(t *testing.T) {
		c, err := Build(discovered(), Request{Service: serviceA, Attributes: []uuid.UUID{attrA2}})
		require.NoError(t, err)

		_, ok := c.Attribute(attrA1)
		assert.False(t, ok)
		a, ok := c.Attribute(attrA2)
		assert.True(t, ok)
		assert.Equal(t, attribute.Handle(3), a.Handle)
	})

	t.Run("missing service", func(t *testing.T) {
		_, err := Build(discovered(), Request{Service: uuid.New()})
		assert.ErrorIs(t, err, ErrServiceNotFound)
	})

	t.Run("missing attribute", func(t *testing.T) {
		_, err := Build(discovered(), Request{Service: serviceB, Attributes: []uuid.UUID{attrA1}})
		assert.ErrorIs(t, err, ErrAttributeNotFound)
	})

	t.Run("nil cache", func(t *testing.T) {
		var c *Cache
		_, ok := c.Attribute(attrA1)
		assert.False(t, ok)
		assert.Empty(t, c.Services())
	})
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	t.Run("access before discover", func(t *testing.T) {
		central := &mockCentral{}
		s := New(central, time.Second)

		_, err := s.Read(ctx, attrA1, nil)
		assert.ErrorIs(t, err, ErrAttributeNotFound)
		err = s.Write(ctx, attrA2, []byte{1}, nil)
		assert.ErrorIs(t, err, ErrAttributeNotFound)
		central.AssertNotCalled(t, "Read", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("read and write through handles", func(t *testing.T) {
		central := &mockCentral{}
		env := auth.NewEnvelope(secure.NewKey(), uuid.New())
		central.On("Discover", mock.Anything).Return(discovered(), nil).Once()
		central.On("Read", mock.Anything, attribute.Handle(2), (*auth.Envelope)(nil)).Return([]byte{0x2a}, nil)
		central.On("Write", mock.Anything, attribute.Handle(3), []byte{0x01}, &env).Return(nil)

		s := New(central, time.Second)
		_, err := s.Discover(ctx)
		require.NoError(t, err)

		value, err := s.Read(ctx, attrA1, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x2a}, value)
		require.NoError(t, s.Write(ctx, attrA2, []byte{0x01}, &env))

		_, err = s.Discover(ctx)
		assert.ErrorIs(t, err, ErrAlreadyDiscovered)
		central.AssertExpectations(t)
	})

	t.Run("deadline surfaces as timeout", func(t *testing.T) {
		central := &mockCentral{}
		central.On("Discover", mock.Anything).Return(discovered(), nil)
		central.On("Read", mock.Anything, attribute.Handle(5), (*auth.Envelope)(nil)).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded)

		s := New(central, 20*time.Millisecond)
		_, err := s.Discover(ctx)
		require.NoError(t, err)

		_, err = s.Read(ctx, attrB1, nil)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("close drops the cache", func(t *testing.T) {
		central := &mockCentral{}
		central.On("Discover", mock.Anything).Return(discovered(), nil)

		s := New(central, time.Second)
		_, err := s.Discover(ctx)
		require.NoError(t, err)
		s.Close()

		assert.Nil(t, s.Cache())
		_, err = s.Read(ctx, attrA1, nil)
		assert.ErrorIs(t, err, ErrAttributeNotFound)
		_, err = s.Discover(ctx)
		assert.ErrorIs(t, err, ErrClosed)
	})
}
