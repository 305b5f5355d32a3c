package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/server"
	"github.com/solarlink/solarlink-go/pkg/transport"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

const chunkSize = 32

type accessory struct {
	t           *testing.T
	coord       *server.Coordinator
	srv         *transport.Server
	sim         *device.Simulator
	setupSecret secure.Key

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newAccessory(t *testing.T) *accessory {
	t.Helper()
	return newAccessoryWithDevice(t, nil)
}

// newAccessoryWithDevice serves dev, or the simulator when dev is nil.
func newAccessoryWithDevice(t *testing.T, dev device.Device) *accessory {
	t.Helper()

	table, err := profile.Table(profile.Config{ID: uuid.New(), Name: "Inverter", Model: "PIP-2424LV"})
	require.NoError(t, err)
	setupSecret := secure.NewKey()
	store, err := credential.NewStore(credential.NewMemoryStore(), setupSecret)
	require.NoError(t, err)
	sim := device.NewSimulator()
	if dev == nil {
		dev = sim
	}
	coord, err := server.New(server.Config{
		Table:           table,
		Store:           store,
		Device:          dev,
		FreshnessWindow: server.DefaultFreshnessWindow,
		MaxChunk:        chunkSize,
	})
	require.NoError(t, err)

	a := &accessory{
		t:           t,
		coord:       coord,
		srv:         transport.NewServer(coord, transport.ServerConfig{}),
		sim:         sim,
		setupSecret: setupSecret,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	t.Cleanup(func() {
		a.cancel()
		a.wg.Wait()
	})
	return a
}

// connect attaches a new central over its own pipe.
func (a *accessory) connect() *Client {
	a.t.Helper()

	pipe := transport.NewPipe(0)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.srv.ServeConn(a.ctx, pipe.Accessory(0))
	}()

	link := transport.NewClient(pipe.Central(0), transport.ClientConfig{})
	c, err := New(testContext(a.t), link, Config{ChunkSize: chunkSize, Timeout: 5 * time.Second})
	require.NoError(a.t, err)
	a.t.Cleanup(func() { c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCredentialLifecycle(t *testing.T) {
	a := newAccessory(t)
	ctx := testContext(t)
	owner := a.connect()

	configured, err := owner.IsConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, configured)

	ownerID, _, err := owner.Setup(ctx, a.setupSecret, "Owner")
	require.NoError(t, err)
	configured, err = owner.IsConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, configured)

	_, _, err = owner.Setup(ctx, a.setupSecret, "Again")
	assert.ErrorIs(t, err, credential.ErrAlreadyConfigured)

	inv, err := owner.Invite(ctx, "Guest", credential.PermissionUser, time.Time{})
	require.NoError(t, err)

	guest := a.connect()
	_, err = guest.Confirm(ctx, inv.ID, inv.Secret)
	require.NoError(t, err)
	guestID, _ := guest.Credential()
	assert.Equal(t, inv.ID, guestID)

	roster, err := owner.Credentials(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, ownerID, roster[0].ID())
	assert.Equal(t, inv.ID, roster[1].ID())
	assert.False(t, roster[1].Pending())

	_, err = guest.Invite(ctx, "Friend", credential.PermissionUser, time.Time{})
	assert.ErrorIs(t, err, credential.ErrPermissionDenied)

	err = owner.Revoke(ctx, ownerID)
	assert.ErrorIs(t, err, credential.ErrOwnerIrrevocable)

	require.NoError(t, owner.Revoke(ctx, inv.ID))
	_, err = guest.Credentials(ctx)
	assert.ErrorIs(t, err, auth.ErrInvalidAuthentication)

	roster, err = owner.Credentials(ctx)
	require.NoError(t, err)
	assert.Len(t, roster, 1)
}

func TestConfirmWithWrongSecret(t *testing.T) {
	a := newAccessory(t)
	ctx := testContext(t)
	owner := a.connect()

	_, _, err := owner.Setup(ctx, a.setupSecret, "Owner")
	require.NoError(t, err)
	inv, err := owner.Invite(ctx, "Guest", credential.PermissionAdmin, time.Time{})
	require.NoError(t, err)

	guest := a.connect()
	_, err = guest.Confirm(ctx, inv.ID, secure.NewKey())
	assert.ErrorIs(t, err, auth.ErrInvalidAuthentication)
	_, err = guest.Credentials(ctx)
	assert.ErrorIs(t, err, auth.ErrInvalidAuthentication)

	_, err = guest.Confirm(ctx, uuid.New(), inv.Secret)
	assert.ErrorIs(t, err, credential.ErrInvitationNotFound)
}

func TestCommand(t *testing.T) {
	a := newAccessory(t)
	ctx := testContext(t)
	c := a.connect()

	_, err := c.Command(ctx, device.QueryProtocolID)
	assert.ErrorIs(t, err, ErrNoCredential)

	_, _, err = c.Setup(ctx, a.setupSecret, "Owner")
	require.NoError(t, err)

	tests := []struct {
		command string
		want    string
	}{
		{device.QueryProtocolID, device.SimulatedProtocolID},
		{device.QuerySerialNumber, device.SimulatedSerialNumber},
		{device.QueryGeneralStatus, device.SimulatedGeneralStatus},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, err := c.Command(ctx, tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = c.Command(ctx, "QXYZ")
	assert.ErrorIs(t, err, device.ErrIncompatibleDevice)
}

// gatedDevice holds queries of one command until released.
type gatedDevice struct {
	device.Device
	command string
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDevice) Query(ctx context.Context, command string) (string, error) {
	if command == d.command {
		d.entered <- struct{}{}
		select {
		case <-d.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return d.Device.Query(ctx, command)
}

func TestCommandSkipsOtherCentralsResponses(t *testing.T) {
	gate := &gatedDevice{
		Device:  device.NewSimulator(),
		command: device.QuerySerialNumber,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	a := newAccessoryWithDevice(t, gate)
	ctx := testContext(t)

	owner := a.connect()
	_, _, err := owner.Setup(ctx, a.setupSecret, "Owner")
	require.NoError(t, err)
	inv, err := owner.Invite(ctx, "Guest", credential.PermissionUser, time.Time{})
	require.NoError(t, err)
	guest := a.connect()
	_, err = guest.Confirm(ctx, inv.ID, inv.Secret)
	require.NoError(t, err)

	type result struct {
		resp string
		err  error
	}
	guestDone := make(chan result, 1)
	go func() {
		resp, err := guest.Command(ctx, device.QuerySerialNumber)
		guestDone <- result{resp, err}
	}()

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("guest command never reached the device")
	}

	resp, err := owner.Command(ctx, device.QueryProtocolID)
	require.NoError(t, err)
	assert.Equal(t, device.SimulatedProtocolID, resp)

	close(gate.release)
	select {
	case r := <-guestDone:
		require.NoError(t, r.err)
		assert.Equal(t, device.SimulatedSerialNumber, r.resp)
	case <-time.After(5 * time.Second):
		t.Fatal("guest command did not finish")
	}
}

func TestOpenResponse(t *testing.T) {
	id, secret := uuid.New(), secure.NewKey()
	seal := func(t *testing.T, id uuid.UUID, secret secure.Key, text string) []byte {
		t.Helper()
		payload, err := auth.Encrypt(secret, id, []byte(text))
		require.NoError(t, err)
		data, err := wire.Marshal(payload)
		require.NoError(t, err)
		return data
	}

	got, err := openResponse(id, secret, seal(t, id, secret, "(PI30"))
	require.NoError(t, err)
	assert.Equal(t, "(PI30", got)

	_, err = openResponse(id, secret, seal(t, uuid.New(), secure.NewKey(), "(PI30"))
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = openResponse(id, secret, seal(t, id, secure.NewKey(), "(PI30"))
	assert.ErrorIs(t, err, auth.ErrInvalidAuthentication)

	_, err = openResponse(id, secret, []byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestIdentifyAndPower(t *testing.T) {
	a := newAccessory(t)
	ctx := testContext(t)
	c := a.connect()

	assert.ErrorIs(t, c.Identify(ctx), ErrNoCredential)

	ownerID, _, err := c.Setup(ctx, a.setupSecret, "Owner")
	require.NoError(t, err)

	require.NoError(t, c.Identify(ctx))
	caller, _ := a.coord.LastIdentify()
	assert.Equal(t, ownerID, caller)

	require.NoError(t, c.SetPower(ctx, true))
	v, err := c.Read(ctx, profile.PowerStateType)
	require.NoError(t, err)
	on, _ := v.AsBool()
	assert.True(t, on)

	v, err = c.Read(ctx, profile.NameType)
	require.NoError(t, err)
	name, _ := v.AsString()
	assert.Equal(t, "Inverter", name)
}

func TestReadRequiresCredential(t *testing.T) {
	a := newAccessory(t)
	ctx := testContext(t)
	c := a.connect()

	_, err := c.Read(ctx, profile.SerialNumberType)
	assert.ErrorIs(t, err, server.ErrNotAuthorized)

	_, err = c.Credentials(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
}
