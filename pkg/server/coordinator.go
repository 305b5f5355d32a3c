package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/metrics"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

// Coordinator errors.
var (
	ErrNotAuthorized      = errors.New("authentication required")
	ErrProtectedAttribute = errors.New("attribute is managed by the coordinator")
	ErrMissingEnvelope    = fmt.Errorf("%w: missing envelope", auth.ErrInvalidAuthentication)
	ErrUnknownCredential  = fmt.Errorf("%w: unknown credential", auth.ErrInvalidAuthentication)
)

// protected attributes are only written through credential transitions.
var protected = map[uuid.UUID]bool{
	profile.ChallengeType:   true,
	profile.ConfiguredType:  true,
	profile.CredentialsType: true,
}

// call carries one authenticated write through dispatch.
type call struct {
	sess *Session
	info attribute.AttributeInfo

	// caller is the verified identity. Handlers may replace it, setup
	// swaps SetupID for the new owner.
	caller uuid.UUID
	env    auth.Envelope

	value     attribute.Value
	plaintext []byte
}

// writeHandler applies a verified write. The returned follow-up runs after
// the coordinator lock is released.
type writeHandler func(c *call) (followUp func(ctx context.Context) error, err error)

// Coordinator serializes credential mutation and attribute updates.
type Coordinator struct {
	mu sync.Mutex

	config    Config
	table     *attribute.Table
	store     *credential.Store
	freshness auth.Freshness
	handlers  map[uuid.UUID]writeHandler
	sessions  map[*Session]struct{}

	lastIdentify struct {
		caller uuid.UUID
		at     time.Time
	}

	logger         *slog.Logger
	protocolLogger log.Logger
}

// New creates a Coordinator and publishes the initial challenge, configured
// flag and roster.
func New(config Config) (*Coordinator, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		config:         config,
		table:          config.Table,
		store:          config.Store,
		freshness:      auth.Freshness{Window: config.FreshnessWindow, Now: config.Clock},
		sessions:       make(map[*Session]struct{}),
		logger:         config.Logger,
		protocolLogger: config.ProtocolLogger,
	}
	c.handlers = map[uuid.UUID]writeHandler{
		profile.SetupType:      c.handleSetup,
		profile.InviteType:     c.handleInvite,
		profile.ConfirmType:    c.handleConfirm,
		profile.RevokeType:     c.handleRevoke,
		profile.CommandType:    c.handleCommand,
		profile.IdentifyType:   c.handleIdentify,
		profile.PowerStateType: c.handlePowerState,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.rotateChallenge(); err != nil {
		return nil, err
	}
	if err := c.publishRoster(); err != nil {
		return nil, err
	}
	return c, nil
}

// Table returns the attribute table.
func (c *Coordinator) Table() *attribute.Table { return c.table }

// Store returns the credential store.
func (c *Coordinator) Store() *credential.Store { return c.store }

// Attach registers a connection's session.
func (c *Coordinator) Attach(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sess] = struct{}{}
	metrics.ActiveConnections.Inc()
}

// Detach forgets a connection's session. In-flight writes still complete.
func (c *Coordinator) Detach(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[sess]; ok {
		delete(c.sessions, sess)
		metrics.ActiveConnections.Dec()
	}
}

// OnWrite verifies and applies a write to handle h. env is the envelope of
// plain requiresAuth writes; encrypted writes carry theirs in data.
func (c *Coordinator) OnWrite(ctx context.Context, sess *Session, h attribute.Handle, data []byte, env *auth.Envelope) error {
	followUp, err := c.write(sess, h, data, env)
	if err != nil {
		return err
	}
	if followUp != nil {
		return followUp(ctx)
	}
	return nil
}

func (c *Coordinator) write(sess *Session, h attribute.Handle, data []byte, env *auth.Envelope) (func(context.Context) error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, desc, ok := c.table.Attribute(h)
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", attribute.ErrAttributeNotFound, h)
	}
	if !info.Properties.CanWrite() || info.Kind == attribute.KindVirtual {
		return nil, fmt.Errorf("%w: %s", attribute.ErrNotWritable, info.Name)
	}

	cl := &call{sess: sess, info: info}
	switch {
	case info.Properties.Encrypted():
		var payload auth.EncryptedPayload
		if err := wire.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %s: encrypted payload: %v", attribute.ErrInvalidValue, info.Name, err)
		}
		claimed := payload.ID()
		plaintext, err := c.open(info.Type, payload)
		c.logAuth(sess, info, true, claimed, err)
		if err != nil {
			return nil, err
		}
		cl.caller = claimed
		cl.env = payload.Authentication
		cl.plaintext = plaintext

	case info.Properties.RequiresAuth():
		if env == nil {
			c.logAuth(sess, info, true, uuid.Nil, ErrMissingEnvelope)
			return nil, ErrMissingEnvelope
		}
		err := c.verify(*env)
		c.logAuth(sess, info, true, env.ID(), err)
		if err != nil {
			return nil, err
		}
		cl.caller = env.ID()
		cl.env = *env
		if cl.value, err = desc.Decode(data); err != nil {
			return nil, err
		}

	default:
		v, err := desc.Decode(data)
		if err != nil {
			return nil, err
		}
		cl.value = v
	}

	var followUp func(context.Context) error
	if handler, ok := c.handlers[info.Type]; ok {
		var err error
		if followUp, err = handler(cl); err != nil {
			return nil, err
		}
	} else {
		if info.Properties.Encrypted() {
			return nil, fmt.Errorf("%w: %s has no handler", attribute.ErrNotWritable, info.Name)
		}
		if err := c.table.Set(info.Type, cl.value); err != nil {
			return nil, err
		}
	}

	if cl.caller != uuid.Nil {
		sess.authenticate(cl.caller)
		if err := c.rotateChallenge(); err != nil {
			c.logger.Error("challenge rotation failed", "error", err)
		}
	}
	return followUp, nil
}

// open picks the secret for an encrypted write by the identity it claims,
// then checks freshness and decrypts.
func (c *Coordinator) open(attrType uuid.UUID, payload auth.EncryptedPayload) ([]byte, error) {
	id := payload.ID()
	switch attrType {
	case profile.SetupType:
		if id != credential.SetupID {
			return nil, fmt.Errorf("%w: setup must be sealed with the setup secret", auth.ErrInvalidAuthentication)
		}
	case profile.ConfirmType:
		if _, ok := c.store.Invitation(id); !ok {
			return nil, fmt.Errorf("%w: %s", credential.ErrInvitationNotFound, id)
		}
	default:
		if _, ok := c.store.Credential(id); !ok {
			return nil, ErrUnknownCredential
		}
	}

	secret, ok := c.store.Secret(id)
	if !ok {
		return nil, ErrUnknownCredential
	}
	if err := c.freshness.Check(payload.Authentication.Message); err != nil {
		return nil, err
	}
	return auth.Decrypt(secret, payload)
}

// verify checks a plain envelope against a confirmed credential.
func (c *Coordinator) verify(env auth.Envelope) error {
	if _, ok := c.store.Credential(env.ID()); !ok {
		return ErrUnknownCredential
	}
	secret, ok := c.store.Secret(env.ID())
	if !ok || !env.Verify(secret) {
		return auth.ErrInvalidAuthentication
	}
	return c.freshness.Check(env.Message)
}

// OnRead decides whether a read of handle h is allowed. requiresAuth
// attributes need either a verifying envelope or a session that already
// completed an authenticated operation.
func (c *Coordinator) OnRead(sess *Session, h attribute.Handle, env *auth.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, _, ok := c.table.Attribute(h)
	if !ok {
		return fmt.Errorf("%w: handle %d", attribute.ErrAttributeNotFound, h)
	}
	if !info.Properties.CanRead() {
		return fmt.Errorf("%w: %s", attribute.ErrNotReadable, info.Name)
	}
	if !info.Properties.RequiresAuth() {
		return nil
	}

	if env != nil {
		err := c.verify(*env)
		c.logAuth(sess, info, false, env.ID(), err)
		if err != nil {
			return err
		}
		sess.authenticate(env.ID())
		return nil
	}
	if sess.Authenticated() {
		return nil
	}
	c.logAuth(sess, info, false, uuid.Nil, ErrNotAuthorized)
	return fmt.Errorf("%w: %s", ErrNotAuthorized, info.Name)
}

// Read gates and performs a read of handle h.
func (c *Coordinator) Read(sess *Session, h attribute.Handle, env *auth.Envelope) ([]byte, error) {
	if err := c.OnRead(sess, h, env); err != nil {
		return nil, err
	}
	return c.table.Read(h)
}

// MayNotify reports whether notifications of handle h may be delivered to
// sess.
func (c *Coordinator) MayNotify(sess *Session, h attribute.Handle) bool {
	info, _, ok := c.table.Attribute(h)
	if !ok {
		return false
	}
	return !info.Properties.RequiresAuth() || sess.Authenticated()
}

// UpdateChallengeNonce publishes a fresh challenge nonce.
func (c *Coordinator) UpdateChallengeNonce() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotateChallenge()
}

func (c *Coordinator) rotateChallenge() error {
	nonce := secure.NewNonce()
	if err := c.table.Set(profile.ChallengeType, attribute.Data(nonce.Bytes())); err != nil {
		return err
	}
	c.protocolLogger.Log(log.Event{
		Timestamp: c.config.Clock(),
		Layer:     log.LayerAccessory,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChallenge,
			NewState: "rotated",
		},
	})
	return nil
}

// RefreshFromDevice publishes a telemetry snapshot. It is the only entry
// point of the refresh poller.
func (c *Coordinator) RefreshFromDevice(status device.Status) error {
	chargingState := profile.NotCharging
	if status.Charging() {
		chargingState = profile.Charging
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := errors.Join(
		c.table.Set(profile.BatteryLevelType, attribute.Uint8(min(status.BatteryCapacity, 100))),
		c.table.Set(profile.BatteryVoltageType, attribute.Float32(float32(status.BatteryVoltage))),
		c.table.Set(profile.ChargingCurrentType, attribute.Uint16(status.BatteryChargingCurrent)),
		c.table.Set(profile.ChargingStateType, attribute.Uint8(chargingState)),
		c.table.Set(profile.PowerStateType, attribute.Bool(status.OutputOn())),
		c.table.Set(profile.OutputVoltageType, attribute.Float32(float32(status.OutputVoltage))),
		c.table.Set(profile.OutputLoadType, attribute.Uint8(status.OutputLoadPercent)),
	)

	metrics.BatteryLevel.Set(float64(status.BatteryCapacity))
	metrics.BatteryVoltage.Set(status.BatteryVoltage)
	metrics.OutputVoltage.Set(status.OutputVoltage)
	return err
}

// Publish updates an attribute on behalf of an external collaborator.
// Authentication state can only change through credential transitions.
func (c *Coordinator) Publish(attrType uuid.UUID, v attribute.Value) error {
	if protected[attrType] {
		return fmt.Errorf("%w: %s", ErrProtectedAttribute, profile.Name(attrType))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Set(attrType, v)
}

// PurgeExpired removes expired invitations and republishes the roster.
func (c *Coordinator) PurgeExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.store.PurgeExpired()
	c.logTransition(nil, log.TransitionPurge, uuid.Nil, "", "", err)
	if err != nil || n == 0 {
		return n, err
	}
	return n, c.publishRoster()
}

// LastIdentify returns the credential that last asked the accessory to
// identify itself, and when.
func (c *Coordinator) LastIdentify() (uuid.UUID, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastIdentify.caller, c.lastIdentify.at
}

// publishRoster republishes the credential list and the configured flag.
// The list is built completely before anything is published.
func (c *Coordinator) publishRoster() error {
	items := c.store.Items()
	roster, err := profile.RosterValue(items)
	if err != nil {
		return err
	}
	if err := c.table.Set(profile.CredentialsType, roster); err != nil {
		return err
	}

	var pending int
	for _, it := range items {
		if it.Pending() {
			pending++
		}
	}
	metrics.Credentials.WithLabelValues("confirmed").Set(float64(len(items) - pending))
	metrics.Credentials.WithLabelValues("pending").Set(float64(pending))

	return c.table.Set(profile.ConfiguredType, attribute.Bool(c.store.IsConfigured()))
}

// republish runs after a committed transition. The transition cannot be
// undone, so a failure is logged rather than returned.
func (c *Coordinator) republish() {
	if err := c.publishRoster(); err != nil {
		c.logger.Error("roster publish failed", "error", err)
	}
}

func (c *Coordinator) logAuth(sess *Session, info attribute.AttributeInfo, write bool, claimed uuid.UUID, err error) {
	outcome := log.AuthAccepted
	label := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrStaleMessage):
		outcome, label = log.AuthStale, "stale"
	case errors.Is(err, auth.ErrDecryptionFailed):
		outcome, label = log.AuthDecryptFailed, "decryption_failed"
	case errors.Is(err, ErrNotAuthorized):
		outcome, label = log.AuthDenied, "denied"
	default:
		outcome, label = log.AuthRejected, "rejected"
	}

	op := "read"
	if write {
		op = "write"
	}
	metrics.AuthAttempts.WithLabelValues(op, label).Inc()

	event := log.Event{
		Timestamp: c.config.Clock(),
		Direction: log.DirectionIn,
		Layer:     log.LayerAccessory,
		Category:  log.CategoryAuth,
		Auth: &log.AuthEvent{
			Handle:  uint16(info.Handle),
			Write:   write,
			Outcome: outcome,
		},
	}
	if claimed != uuid.Nil {
		event.Auth.ClaimedID = claimed.String()
	}
	if sess != nil {
		event.ConnectionID = sess.ID()
		event.RemoteAddr = sess.RemoteAddr()
	}
	c.protocolLogger.Log(event)

	if err != nil {
		c.logger.Warn("authentication failed", "attribute", info.Name, "operation", op, "outcome", label)
	}
}

func (c *Coordinator) logTransition(cl *call, kind log.TransitionKind, subject uuid.UUID, name, permission string, err error) {
	metrics.CredentialTransitions.WithLabelValues(kind.String(), metrics.Result(err)).Inc()

	event := log.Event{
		Timestamp: c.config.Clock(),
		Layer:     log.LayerAccessory,
		Category:  log.CategoryCredential,
		Transition: &log.TransitionEvent{
			Kind:       kind,
			Name:       name,
			Permission: permission,
		},
	}
	if subject != uuid.Nil {
		event.Transition.Subject = subject.String()
	}
	if err != nil {
		event.Transition.Error = err.Error()
	}
	if cl != nil {
		event.ConnectionID = cl.sess.ID()
		event.CredentialID = cl.caller.String()
	}
	c.protocolLogger.Log(event)
}
