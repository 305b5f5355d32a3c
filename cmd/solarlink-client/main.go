// Command solarlink-client is an interactive SolarLink central.
//
// It discovers accessories over mDNS, claims them, manages their
// credentials and sends inverter commands. Credentials obtained by setup
// and confirm are kept in a keyring file so later sessions can use them.
//
// Usage:
//
//	solarlink-client [flags]
//
// Flags:
//
//	-connect string       Connect on start (host:port or accessory id)
//	-keyring string       Credential file (default "solarlink-keyring.json")
//	-setup-secret string  Base64 setup key used by 'setup' without a code
//	-interface string     Network interface for mDNS (default: all)
//	-timeout duration     Per-operation timeout (default 10s)
//	-log-level string     Log level: debug, info, warn, error (default "warn")
//	-protocol-log string  Write protocol events to this file
//
// Examples:
//
//	# Find accessories, then claim one with its printed setup code
//	solarlink-client
//	solarlink> discover
//	solarlink> connect 4c1f0f8e-7f52-4a4e-9c66-0d7b9a1f3e21
//	solarlink> setup "Home" 31415926
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/solarlink/solarlink-go/cmd/solarlink-client/interactive"
	"github.com/solarlink/solarlink-go/pkg/discovery"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/session"
)

// Config holds the client configuration.
type Config struct {
	Connect     string
	Keyring     string
	SetupSecret string
	Interface   string
	Timeout     time.Duration
	ChunkSize   int
	LogLevel    string
	ProtocolLog string
}

var config Config

func init() {
	flag.StringVar(&config.Connect, "connect", "", "Connect on start (host:port or accessory id)")
	flag.StringVar(&config.Keyring, "keyring", "solarlink-keyring.json", "Credential file")
	flag.StringVar(&config.SetupSecret, "setup-secret", "", "Base64 setup key used by 'setup' without a code")
	flag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS (default: all)")
	flag.DurationVar(&config.Timeout, "timeout", session.DefaultTimeout, "Per-operation timeout")
	flag.IntVar(&config.ChunkSize, "chunk-size", profile.ChunkSize, "Command response chunk size of the accessory")
	flag.StringVar(&config.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write protocol events to this file")
}

func main() {
	flag.Parse()

	if err := validateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "solarlink-client: %v\n", err)
		os.Exit(2)
	}

	var setupSecret secure.Key
	if config.SetupSecret != "" {
		setupSecret, _ = secure.ParseKey(config.SetupSecret)
	}

	var protocolLogger log.Logger
	if config.ProtocolLog != "" {
		fl, err := log.NewFileLogger(config.ProtocolLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "solarlink-client: %v\n", err)
			os.Exit(1)
		}
		defer fl.Close()
		protocolLogger = fl
	}

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: config.Interface})
	defer browser.Stop()

	shell, err := interactive.New(interactive.Config{
		SetupSecret:    setupSecret,
		Keyring:        interactive.OpenKeyring(config.Keyring),
		Browser:        browser,
		ChunkSize:      config.ChunkSize,
		Timeout:        config.Timeout,
		ProtocolLogger: protocolLogger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "solarlink-client: %v\n", err)
		os.Exit(1)
	}

	// Log output goes through readline so it does not clobber the prompt.
	logger := slog.New(slog.NewTextHandler(shell.Stdout(), &slog.HandlerOptions{Level: parseLevel(config.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if config.Connect != "" {
		shell.Execute(ctx, "connect "+config.Connect)
	}
	shell.Run(ctx, cancel)
}

func validateConfig() error {
	if config.SetupSecret != "" {
		if _, err := secure.ParseKey(config.SetupSecret); err != nil {
			return fmt.Errorf("setup secret: %w", err)
		}
	}
	if config.Keyring == "" {
		return fmt.Errorf("keyring path is empty")
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
