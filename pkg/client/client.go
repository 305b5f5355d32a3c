// Package client performs the central-side accessory operations: setup,
// invitation and confirmation, revocation, encrypted commands and the
// authenticated outlet and identify writes.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/session"
	"github.com/solarlink/solarlink-go/pkg/transport"
	"github.com/solarlink/solarlink-go/pkg/wire"
)

// Client errors.
var (
	ErrNoCredential    = errors.New("no credential configured")
	ErrInvalidResponse = errors.New("invalid command response")
)

// Config configures a Client.
type Config struct {
	// ID and Secret are the credential used for authenticated operations.
	// They are filled in by Setup and Confirm.
	ID     uuid.UUID
	Secret secure.Key

	// ChunkSize must match the accessory's response chunk size. Defaults
	// to profile.ChunkSize.
	ChunkSize int

	// Timeout bounds each link operation. Defaults to session.DefaultTimeout.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Invitation is a minted invitation together with the pending secret the
// invitee confirms with. The secret is handed over out of band.
type Invitation struct {
	ID     uuid.UUID
	Name   string
	Secret secure.Key
}

// Client drives one accessory over a link connection.
type Client struct {
	link    *transport.Client
	session *session.Session
	config  Config
	logger  *slog.Logger
}

// New discovers the accessory over link and returns a ready Client.
func New(ctx context.Context, link *transport.Client, config Config) (*Client, error) {
	if config.ChunkSize <= 0 {
		config.ChunkSize = profile.ChunkSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	sess := session.New(link, config.Timeout)
	if _, err := sess.Discover(ctx); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return &Client{link: link, session: sess, config: config, logger: config.Logger}, nil
}

// Session returns the resolver the client reads and writes through.
func (c *Client) Session() *session.Session { return c.session }

// Credential returns the credential in use.
func (c *Client) Credential() (uuid.UUID, secure.Key) { return c.config.ID, c.config.Secret }

// SetCredential switches the credential used for authenticated operations.
func (c *Client) SetCredential(id uuid.UUID, secret secure.Key) {
	c.config.ID = id
	c.config.Secret = secret
}

// Close drops the session and closes the link.
func (c *Client) Close() error {
	c.session.Close()
	return c.link.Close()
}

// Read reads and decodes an attribute. requiresAuth attributes are read
// with an envelope of the current credential.
func (c *Client) Read(ctx context.Context, attrType uuid.UUID) (attribute.Value, error) {
	info, ok := c.session.Cache().Attribute(attrType)
	if !ok {
		return attribute.Value{}, fmt.Errorf("%w: %s", session.ErrAttributeNotFound, profile.Name(attrType))
	}

	var env *auth.Envelope
	if info.Properties.RequiresAuth() && c.hasCredential() {
		e := auth.NewEnvelope(c.config.Secret, c.config.ID)
		env = &e
	}
	data, err := c.session.Read(ctx, attrType, env)
	if err != nil {
		return attribute.Value{}, err
	}
	if info.Kind == attribute.KindList {
		return attribute.DecodeList(info.Format, data)
	}
	return attribute.Decode(info.Format, data)
}

// IsConfigured reports whether the accessory has an owner.
func (c *Client) IsConfigured(ctx context.Context) (bool, error) {
	v, err := c.Read(ctx, profile.ConfiguredType)
	if err != nil {
		return false, err
	}
	configured, _ := v.AsBool()
	return configured, nil
}

// Setup claims an unconfigured accessory. The request is sealed with the
// setup secret; the new owner credential becomes the client's credential.
func (c *Client) Setup(ctx context.Context, setupSecret secure.Key, name string) (uuid.UUID, secure.Key, error) {
	id, secret := uuid.New(), secure.NewKey()
	req := profile.SetupRequest{ID: id, Name: name, Secret: secret}
	if err := c.writeSealed(ctx, profile.SetupType, setupSecret, credential.SetupID, req); err != nil {
		return uuid.Nil, secure.Key{}, err
	}

	c.SetCredential(id, secret)
	c.logger.Info("accessory configured", "owner", id, "name", name)
	return id, secret, nil
}

// Invite mints an invitation. A zero expiresAt never expires.
func (c *Client) Invite(ctx context.Context, name string, perm credential.Permission, expiresAt time.Time) (Invitation, error) {
	if !c.hasCredential() {
		return Invitation{}, ErrNoCredential
	}

	inv := Invitation{ID: uuid.New(), Name: name, Secret: secure.NewKey()}
	req := profile.InviteRequest{
		ID:         inv.ID,
		Name:       name,
		Permission: perm,
		Secret:     inv.Secret,
		ExpiresAt:  expiresAt,
	}
	if err := c.writeSealed(ctx, profile.InviteType, c.config.Secret, c.config.ID, req); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// Confirm redeems an invitation with its pending secret and installs a
// fresh secret. The confirmed credential becomes the client's credential.
func (c *Client) Confirm(ctx context.Context, id uuid.UUID, pendingSecret secure.Key) (secure.Key, error) {
	secret := secure.NewKey()
	req := profile.ConfirmRequest{Secret: secret}
	if err := c.writeSealed(ctx, profile.ConfirmType, pendingSecret, id, req); err != nil {
		return secure.Key{}, err
	}
	c.SetCredential(id, secret)
	return secret, nil
}

// Revoke removes a credential or pending invitation.
func (c *Client) Revoke(ctx context.Context, id uuid.UUID) error {
	if !c.hasCredential() {
		return ErrNoCredential
	}
	return c.writeSealed(ctx, profile.RevokeType, c.config.Secret, c.config.ID, profile.RevokeRequest{ID: id})
}

// Credentials returns the accessory's roster.
func (c *Client) Credentials(ctx context.Context) ([]credential.Item, error) {
	if !c.hasCredential() {
		return nil, ErrNoCredential
	}
	env := auth.NewEnvelope(c.config.Secret, c.config.ID)
	data, err := c.session.Read(ctx, profile.CredentialsType, &env)
	if err != nil {
		return nil, err
	}
	return profile.ParseRoster(data)
}

// Command sends an encrypted inverter command and returns the decrypted
// response. Responses are pushed to every subscribed central; those sealed
// for another credential are skipped.
func (c *Client) Command(ctx context.Context, command string) (string, error) {
	if !c.hasCredential() {
		return "", ErrNoCredential
	}
	info, ok := c.session.Cache().Attribute(profile.CommandResponseType)
	if !ok {
		return "", fmt.Errorf("%w: %s", session.ErrAttributeNotFound, profile.Name(profile.CommandResponseType))
	}
	id, secret := c.config.ID, c.config.Secret

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.link.Subscribe(ctx, info.Handle); err != nil {
		return "", fmt.Errorf("subscribe to command response: %w", err)
	}

	responses := make(chan string, 1)
	asm := profile.NewAssembler(c.config.ChunkSize)
	remove := c.link.HandleNotifications(func(h attribute.Handle, value []byte) {
		if h != info.Handle {
			return
		}
		data, done := asm.Add(value)
		if !done {
			return
		}
		resp, err := openResponse(id, secret, data)
		if err != nil {
			c.logger.Debug("skipping command response", "error", err)
			return
		}
		select {
		case responses <- resp:
		default:
		}
	})
	defer remove()

	payload, err := auth.Encrypt(secret, id, []byte(command))
	if err != nil {
		return "", err
	}
	sealed, err := wire.Marshal(payload)
	if err != nil {
		return "", err
	}
	if err := c.session.Write(ctx, profile.CommandType, sealed, nil); err != nil {
		return "", err
	}

	select {
	case resp := <-responses:
		return resp, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: waiting for command response", session.ErrTimeout)
	}
}

// openResponse decrypts an assembled response sealed for id.
func openResponse(id uuid.UUID, secret secure.Key, data []byte) (string, error) {
	var payload auth.EncryptedPayload
	if err := wire.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if payload.ID() != id {
		return "", fmt.Errorf("%w: sealed for %s", ErrInvalidResponse, payload.ID())
	}
	plaintext, err := auth.Decrypt(secret, payload)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: not UTF-8", ErrInvalidResponse)
	}
	return string(plaintext), nil
}

// Identify asks the accessory to identify itself.
func (c *Client) Identify(ctx context.Context) error {
	return c.writeAuthenticated(ctx, profile.IdentifyType, attribute.Bool(true))
}

// SetPower switches the inverter output.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	return c.writeAuthenticated(ctx, profile.PowerStateType, attribute.Bool(on))
}

func (c *Client) writeAuthenticated(ctx context.Context, attrType uuid.UUID, v attribute.Value) error {
	if !c.hasCredential() {
		return ErrNoCredential
	}
	data, err := v.Encode()
	if err != nil {
		return err
	}
	env := auth.NewEnvelope(c.config.Secret, c.config.ID)
	return c.session.Write(ctx, attrType, data, &env)
}

func (c *Client) writeSealed(ctx context.Context, attrType uuid.UUID, secret secure.Key, id uuid.UUID, req any) error {
	plaintext, err := profile.MarshalRequest(req)
	if err != nil {
		return err
	}
	payload, err := auth.Encrypt(secret, id, plaintext)
	if err != nil {
		return err
	}
	data, err := wire.Marshal(payload)
	if err != nil {
		return err
	}
	return c.session.Write(ctx, attrType, data, nil)
}

func (c *Client) hasCredential() bool {
	return c.config.ID != uuid.Nil && !c.config.Secret.IsZero()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
