package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/server"
)

const testID = "4c1f0f8e-7f52-4a4e-9c66-0d7b9a1f3e21"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accessory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, server.DefaultFreshnessWindow, cfg.FreshnessWindow)
	assert.True(t, cfg.Advertise)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	path := writeConfig(t, `
id: `+testID+`
name: Garage Inverter
rssi: -55
setupCode: "31415926"
listen: ":7400"
refreshInterval: 30s
freshnessWindow: 0s
lowBatteryThreshold: 20
advertise: false
`)

	cfg, err := loadConfig([]string{"-config", path, "-name", "Roof Inverter", "-low-battery", "15"})
	require.NoError(t, err)

	assert.Equal(t, testID, cfg.ID)
	assert.Equal(t, "Roof Inverter", cfg.Name, "flag overrides file")
	assert.Equal(t, -55, cfg.RSSI)
	assert.Equal(t, "31415926", cfg.SetupCode)
	assert.Equal(t, ":7400", cfg.Listen)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, time.Duration(0), cfg.FreshnessWindow, "zero disables the window")
	assert.Equal(t, uint8(15), cfg.LowBatteryThreshold)
	assert.False(t, cfg.Advertise)
	assert.Equal(t, "PIP-2424LV", cfg.Model, "unset keys keep defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	bad := writeConfig(t, "refreshInterval: [1, 2]\n")

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"bad yaml", []string{"-config=" + bad}},
		{"unknown flag", []string{"-bogus"}},
		{"threshold above 100", []string{"-low-battery", "101"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"-config", "a.yaml"}, "a.yaml"},
		{[]string{"--config=b.yaml", "-name", "x"}, "b.yaml"},
		{[]string{"-name", "config"}, ""},
		{[]string{"--", "-config", "c.yaml"}, ""},
		{[]string{"-config"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, configPath(tt.args), "%v", tt.args)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := defaultConfig()
		cfg.ID = testID
		cfg.SetupCode = "31415926"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing id", func(c *Config) { c.ID = "" }, ErrMissingID},
		{"bad id", func(c *Config) { c.ID = "inverter-1" }, ErrInvalidConfig},
		{"no secret", func(c *Config) { c.SetupCode = "" }, ErrMissingSetupSecret},
		{"short secret", func(c *Config) { c.SetupSecret = "AAAA" }, ErrInvalidConfig},
		{"empty listen", func(c *Config) { c.Listen = "" }, ErrInvalidConfig},
		{"negative window", func(c *Config) { c.FreshnessWindow = -time.Second }, ErrInvalidConfig},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{ID: testID, SetupCode: "1"}
	cfg.applyDefaults()

	def := defaultConfig()
	assert.Equal(t, def.Name, cfg.Name)
	assert.Equal(t, def.RefreshInterval, cfg.RefreshInterval)
	assert.Equal(t, def.ChallengeInterval, cfg.ChallengeInterval)
	assert.Equal(t, def.MaxChunk, cfg.MaxChunk)
	assert.Equal(t, uint8(profile.DefaultLowBatteryThreshold), cfg.LowBatteryThreshold)
	assert.Zero(t, cfg.FreshnessWindow)
}

func TestSetupKey(t *testing.T) {
	t.Run("secret", func(t *testing.T) {
		key := secure.NewKey()
		text, err := key.MarshalText()
		require.NoError(t, err)

		cfg := Config{ID: testID, SetupSecret: string(text), SetupCode: "ignored"}
		got, err := cfg.setupKey()
		require.NoError(t, err)
		assert.True(t, key.Equal(got))
	})

	t.Run("derived from code", func(t *testing.T) {
		cfg := Config{ID: testID, SetupCode: "31415926"}
		got, err := cfg.setupKey()
		require.NoError(t, err)

		want, err := auth.DeriveSetupKey("31415926", uuid.MustParse(testID))
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})
}

func TestIdentify(t *testing.T) {
	cfg := defaultConfig()
	cfg.ID = testID

	t.Run("simulator", func(t *testing.T) {
		pc := identify(t.Context(), cfg, device.NewSimulator(), discardLogger())
		assert.Equal(t, uuid.MustParse(testID), pc.ID)
		assert.Equal(t, "92631807100358", pc.SerialNumber)
		assert.Equal(t, uint32(30), pc.ProtocolID)
		assert.Equal(t, version, pc.SoftwareVersion)
	})

	t.Run("unresponsive", func(t *testing.T) {
		sim := device.NewSimulator()
		sim.Set(device.QuerySerialNumber, "NAK")
		sim.Set(device.QueryProtocolID, "NAK")

		pc := identify(t.Context(), cfg, sim, discardLogger())
		assert.Empty(t, pc.SerialNumber)
		assert.Zero(t, pc.ProtocolID)
	})
}

func TestWatchConfigured(t *testing.T) {
	table, err := profile.Table(profile.Config{ID: uuid.MustParse(testID)})
	require.NoError(t, err)

	var seen []bool
	unsubscribe := watchConfigured(table, func(configured bool) {
		seen = append(seen, configured)
	})

	require.NoError(t, table.Set(profile.BatteryLevelType, attribute.Uint8(50)))
	require.NoError(t, table.Set(profile.ConfiguredType, attribute.Bool(true)))
	require.NoError(t, table.Set(profile.ConfiguredType, attribute.Bool(true)))

	unsubscribe()
	require.NoError(t, table.Set(profile.ConfiguredType, attribute.Bool(false)))

	assert.Equal(t, []bool{true}, seen)
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warn", "error"} {
		_, err := parseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLevel("trace")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
