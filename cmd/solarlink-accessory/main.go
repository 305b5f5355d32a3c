// Command solarlink-accessory runs a SolarLink accessory in front of a
// solar inverter.
//
// The accessory publishes the inverter's telemetry as attributes, accepts
// encrypted credential and command writes from centrals, advertises itself
// over mDNS, and exposes Prometheus metrics and a health endpoint.
//
// Usage:
//
//	solarlink-accessory [flags]
//
// Flags:
//
//	-config string            Configuration file path (YAML)
//	-id string                Accessory identifier (UUID)
//	-setup-secret string      Base64 setup key
//	-setup-code string        Printed setup code (used when no setup key is given)
//	-listen string            Link listen address (default ":7368")
//	-auth-file string         Credential store file (default "solarlink-auth.json")
//	-freshness-window value   Accepted clock skew of signed messages (default 30s, 0 disables)
//	-metrics-listen string    Status and metrics listen address (default ":9368")
//	-log-level string         Log level: debug, info, warn, error (default "info")
//	-protocol-log string      Write protocol events to this file
//
// Example configuration file:
//
//	id: 4c1f0f8e-7f52-4a4e-9c66-0d7b9a1f3e21
//	name: Garage Inverter
//	model: PIP-2424LV
//	rssi: -55
//	setupCode: "31415926"
//	listen: ":7368"
//	authFile: /var/lib/solarlink/auth.json
//	refreshInterval: 10s
//	challengeInterval: 5m
//	freshnessWindow: 30s
//	lowBatteryThreshold: 20
//	advertise: true
//	metricsListen: ":9368"
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/attribute"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/device"
	"github.com/solarlink/solarlink-go/pkg/discovery"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/metrics"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/server"
	"github.com/solarlink/solarlink-go/pkg/status"
	"github.com/solarlink/solarlink-go/pkg/transport"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "solarlink-accessory: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "solarlink-accessory: %v\n", err)
		os.Exit(2)
	}
	cfg.applyDefaults()

	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("accessory failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	protocolLogger, closeLog, err := openProtocolLog(cfg.ProtocolLog, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	setupKey, err := cfg.setupKey()
	if err != nil {
		return fmt.Errorf("setup key: %w", err)
	}
	store, err := credential.NewStore(credential.NewFileStore(cfg.AuthFile), setupKey,
		credential.WithLogger(logger.With("component", "credentials")))
	if err != nil {
		return err
	}

	dev := device.NewSimulator()
	table, err := profile.Table(identify(ctx, cfg, dev, logger))
	if err != nil {
		return err
	}

	coord, err := server.New(server.Config{
		Table:           table,
		Store:           store,
		Device:          dev,
		FreshnessWindow: cfg.FreshnessWindow,
		MaxChunk:        cfg.MaxChunk,
		Logger:          logger.With("component", "coordinator"),
		ProtocolLogger:  protocolLogger,
	})
	if err != nil {
		return err
	}

	link := transport.NewServer(coord, transport.ServerConfig{
		Address:        cfg.Listen,
		Logger:         logger.With("component", "link"),
		ProtocolLogger: protocolLogger,
	})
	if err := link.Start(ctx); err != nil {
		return err
	}
	defer link.Stop()

	poller := device.NewPoller(dev, coord.RefreshFromDevice, device.PollerConfig{
		Interval: cfg.RefreshInterval,
		Logger:   logger.With("component", "poller"),
	})
	go poller.Run(ctx)

	go every(ctx, cfg.ChallengeInterval, func() {
		if err := coord.UpdateChallengeNonce(); err != nil {
			logger.Warn("challenge rotation failed", "error", err)
		}
	})
	go every(ctx, cfg.PurgeInterval, func() {
		if _, err := coord.PurgeExpired(); err != nil {
			logger.Warn("invitation purge failed", "error", err)
		}
	})

	if cfg.Advertise {
		adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
			Interface: cfg.Interface,
			Logger:    logger.With("component", "mdns"),
		})
		if err := advertise(ctx, adv, cfg, coord, listenPort(link.Addr())); err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		}
		defer adv.Stop()
	}

	metrics.Register()
	if cfg.MetricsListen != "" {
		statusSrv := status.NewServer(status.Config{
			Address:     cfg.MetricsListen,
			Roster:      store,
			Connections: link.ConnectionCount,
			Logger:      logger.With("component", "status"),
		})
		if err := statusSrv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			statusSrv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("accessory running",
		"id", cfg.ID,
		"name", cfg.Name,
		"version", version,
		"configured", store.IsConfigured(),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// identify queries the inverter for the values published in the
// Information service. A device that does not answer leaves them empty.
func identify(ctx context.Context, cfg Config, dev device.Device, logger *slog.Logger) profile.Config {
	pc := profile.Config{
		ID:                  cfg.accessoryID(),
		Name:                cfg.Name,
		Model:               cfg.Model,
		SoftwareVersion:     version,
		LowBatteryThreshold: cfg.LowBatteryThreshold,
	}

	if resp, err := device.Query(ctx, dev, device.QuerySerialNumber, device.DefaultQueryTimeout); err != nil {
		logger.Warn("serial number query failed", "error", err)
	} else if serial, err := device.ParseSerialNumber(resp); err != nil {
		logger.Warn("unexpected serial number", "error", err)
	} else {
		pc.SerialNumber = serial
	}

	if resp, err := device.Query(ctx, dev, device.QueryProtocolID, device.DefaultQueryTimeout); err != nil {
		logger.Warn("protocol id query failed", "error", err)
	} else if id, err := device.ParseProtocolID(resp); err != nil {
		logger.Warn("unexpected protocol id", "error", err)
	} else {
		pc.ProtocolID = id
	}
	return pc
}

// advertise announces the accessory and keeps the configured flag of the
// TXT record in step with the credential store.
func advertise(ctx context.Context, adv discovery.Advertiser, cfg Config, coord *server.Coordinator, port uint16) error {
	var services []uuid.UUID
	for _, svc := range coord.Table().Services() {
		services = append(services, svc.Type)
	}
	info := func() *discovery.AccessoryInfo {
		i := cfg.accessoryInfo(coord.Store().IsConfigured(), port, services)
		return &i
	}

	if err := adv.Advertise(ctx, info()); err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	unsubscribe := watchConfigured(coord.Table(), func(bool) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				if err := adv.Update(info()); err != nil && !errors.Is(err, discovery.ErrNotAdvertising) {
					slog.Warn("mDNS update failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// watchConfigured calls fn with the new value whenever the configured flag
// changes.
func watchConfigured(table *attribute.Table, fn func(bool)) (unsubscribe func()) {
	info, ok := table.Lookup(profile.ConfiguredType)
	if !ok {
		return func() {}
	}
	return table.Subscribe(func(h attribute.Handle, data []byte) {
		if h != info.Handle {
			return
		}
		v, err := attribute.Decode(attribute.FormatBool, data)
		if err != nil {
			return
		}
		configured, _ := v.AsBool()
		fn(configured)
	})
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return discovery.DefaultPort
}

// openProtocolLog returns the protocol event sink. Events always reach the
// operational log at debug level; a file is added when path is set.
func openProtocolLog(path string, logger *slog.Logger) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(logger.With("component", "protocol"))
	if path == "" {
		return adapter, func() {}, nil
	}

	file, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	closeFn := func() {
		if err := file.Close(); err != nil {
			logger.Warn("closing protocol log", "error", err)
		}
	}
	return log.NewMultiLogger(file, adapter), closeFn, nil
}
