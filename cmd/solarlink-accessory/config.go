package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/discovery"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/server"
	"github.com/solarlink/solarlink-go/pkg/status"
	"github.com/solarlink/solarlink-go/pkg/transport"
)

// Config holds the accessory configuration. Values come from defaults, then
// the YAML file named by -config, then command line flags.
type Config struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
	RSSI  int    `yaml:"rssi"`

	// SetupSecret is the base64 setup key. SetupCode is used instead when
	// the secret is empty.
	SetupSecret string `yaml:"setupSecret"`
	SetupCode   string `yaml:"setupCode"`

	Listen              string        `yaml:"listen"`
	AuthFile            string        `yaml:"authFile"`
	RefreshInterval     time.Duration `yaml:"refreshInterval"`
	ChallengeInterval   time.Duration `yaml:"challengeInterval"`
	PurgeInterval       time.Duration `yaml:"purgeInterval"`
	FreshnessWindow     time.Duration `yaml:"freshnessWindow"`
	LowBatteryThreshold uint8         `yaml:"lowBatteryThreshold"`
	MaxChunk            int           `yaml:"maxChunk"`
	Advertise           bool          `yaml:"advertise"`
	Interface           string        `yaml:"interface"`
	MetricsListen       string        `yaml:"metricsListen"`

	LogLevel    string `yaml:"logLevel"`
	ProtocolLog string `yaml:"protocolLog"`
}

// Config errors.
var (
	ErrMissingID          = errors.New("accessory id is required")
	ErrMissingSetupSecret = errors.New("setupSecret or setupCode is required")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

func defaultConfig() Config {
	return Config{
		Name:                "SolarLink Inverter",
		Model:               "PIP-2424LV",
		RSSI:                -60,
		Listen:              transport.DefaultAddress,
		AuthFile:            "solarlink-auth.json",
		RefreshInterval:     device.DefaultPollInterval,
		ChallengeInterval:   5 * time.Minute,
		PurgeInterval:       time.Hour,
		FreshnessWindow:     server.DefaultFreshnessWindow,
		LowBatteryThreshold: profile.DefaultLowBatteryThreshold,
		MaxChunk:            profile.ChunkSize,
		Advertise:           true,
		MetricsListen:       status.DefaultAddress,
		LogLevel:            "info",
	}
}

// loadConfig builds the configuration from args. A -config file is applied
// before the remaining flags, so flags given explicitly win.
func loadConfig(args []string) (Config, error) {
	cfg := defaultConfig()

	if path := configPath(args); path != "" {
		if err := readConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	fs := flag.NewFlagSet("solarlink-accessory", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var configFile string
	fs.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	fs.StringVar(&cfg.ID, "id", cfg.ID, "Accessory identifier (UUID)")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "Accessory name")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Inverter model")
	fs.IntVar(&cfg.RSSI, "rssi", cfg.RSSI, "Signal strength advertised to centrals")
	fs.StringVar(&cfg.SetupSecret, "setup-secret", cfg.SetupSecret, "Base64 setup key")
	fs.StringVar(&cfg.SetupCode, "setup-code", cfg.SetupCode, "Printed setup code (used when no setup key is given)")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Link listen address")
	fs.StringVar(&cfg.AuthFile, "auth-file", cfg.AuthFile, "Credential store file")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "Telemetry refresh period")
	fs.DurationVar(&cfg.ChallengeInterval, "challenge-interval", cfg.ChallengeInterval, "Challenge nonce rotation period")
	fs.DurationVar(&cfg.PurgeInterval, "purge-interval", cfg.PurgeInterval, "Expired invitation purge period")
	fs.DurationVar(&cfg.FreshnessWindow, "freshness-window", cfg.FreshnessWindow, "Accepted clock skew of signed messages (0 disables)")
	threshold := fs.Uint("low-battery", uint(cfg.LowBatteryThreshold), "Low battery threshold in percent")
	fs.IntVar(&cfg.MaxChunk, "max-chunk", cfg.MaxChunk, "Largest command response chunk in bytes")
	fs.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "Advertise the accessory over mDNS")
	fs.StringVar(&cfg.Interface, "interface", cfg.Interface, "Network interface for mDNS (default: all)")
	fs.StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "Status and metrics listen address (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ProtocolLog, "protocol-log", cfg.ProtocolLog, "Write protocol events to this file")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if *threshold > 100 {
		return Config{}, fmt.Errorf("%w: low battery threshold %d is above 100", ErrInvalidConfig, *threshold)
	}
	cfg.LowBatteryThreshold = uint8(*threshold)
	return cfg, nil
}

// configPath finds the -config argument without parsing the other flags.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if len(name) == len(arg) {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func readConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ID == "" {
		return ErrMissingID
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return fmt.Errorf("%w: id: %v", ErrInvalidConfig, err)
	}
	if c.SetupSecret == "" && c.SetupCode == "" {
		return ErrMissingSetupSecret
	}
	if c.SetupSecret != "" {
		if _, err := secure.ParseKey(c.SetupSecret); err != nil {
			return fmt.Errorf("%w: setupSecret: %v", ErrInvalidConfig, err)
		}
	}
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalidConfig)
	}
	if c.AuthFile == "" {
		return fmt.Errorf("%w: authFile is empty", ErrInvalidConfig)
	}
	if c.FreshnessWindow < 0 {
		return fmt.Errorf("%w: negative freshness window", ErrInvalidConfig)
	}
	if c.LowBatteryThreshold > 100 {
		return fmt.Errorf("%w: low battery threshold %d is above 100", ErrInvalidConfig, c.LowBatteryThreshold)
	}
	if c.MaxChunk < 0 {
		return fmt.Errorf("%w: negative max chunk", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := defaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = def.RefreshInterval
	}
	if c.ChallengeInterval <= 0 {
		c.ChallengeInterval = def.ChallengeInterval
	}
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = def.PurgeInterval
	}
	if c.LowBatteryThreshold == 0 {
		c.LowBatteryThreshold = def.LowBatteryThreshold
	}
	if c.MaxChunk == 0 {
		c.MaxChunk = def.MaxChunk
	}
}

// accessoryID returns the parsed id. validate must have succeeded.
func (c *Config) accessoryID() uuid.UUID {
	return uuid.MustParse(c.ID)
}

// setupKey returns the configured setup secret, deriving it from the setup
// code when no key is given.
func (c *Config) setupKey() (secure.Key, error) {
	if c.SetupSecret != "" {
		return secure.ParseKey(c.SetupSecret)
	}
	return auth.DeriveSetupKey(c.SetupCode, c.accessoryID())
}

func (c *Config) accessoryInfo(configured bool, port uint16, services []uuid.UUID) discovery.AccessoryInfo {
	return discovery.AccessoryInfo{
		ID:         c.accessoryID(),
		Name:       c.Name,
		Model:      c.Model,
		RSSI:       c.RSSI,
		Services:   services,
		Configured: configured,
		Port:       port,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
}
