package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/profile"
)

// Config configures a Coordinator.
type Config struct {
	// Table is the published attribute table. Required.
	Table *attribute.Table

	// Store is the credential store. Required.
	Store *credential.Store

	// Device receives decrypted commands. Commands fail with
	// device.ErrIncompatibleDevice when nil.
	Device device.Device

	// FreshnessWindow bounds the accepted clock skew of authentication
	// messages. Zero disables the check.
	FreshnessWindow time.Duration

	// QueryTimeout bounds a forwarded command. Defaults to
	// device.DefaultQueryTimeout.
	QueryTimeout time.Duration

	// MaxChunk is the largest command response chunk. Defaults to
	// profile.ChunkSize.
	MaxChunk int

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Logger for operational messages. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives auth and credential events (optional).
	ProtocolLogger log.Logger
}

// DefaultFreshnessWindow is the recommended freshness window.
const DefaultFreshnessWindow = auth.DefaultFreshnessWindow

var errMissingDependency = errors.New("server: table and store are required")

func (c *Config) applyDefaults() error {
	if c.Table == nil || c.Store == nil {
		return errMissingDependency
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = device.DefaultQueryTimeout
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = profile.ChunkSize
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.ProtocolLogger = log.OrNoop(c.ProtocolLogger)
	return nil
}
