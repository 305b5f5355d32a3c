// Package interactive provides the interactive command-line interface
// for the SolarLink central.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/solarlink/solarlink-go/pkg/auth"
	"github.com/solarlink/solarlink-go/pkg/client"
	"github.com/solarlink/solarlink-go/pkg/credential"
	"github.com/solarlink/solarlink-go/pkg/discovery"
	"github.com/solarlink/solarlink-go/pkg/log"
	"github.com/solarlink/solarlink-go/pkg/profile"
	"github.com/solarlink/solarlink-go/pkg/secure"
	"github.com/solarlink/solarlink-go/pkg/transport"
)

// Shell errors.
var (
	ErrNotConnected = errors.New("not connected (use 'connect')")
	ErrNoSetupKey   = errors.New("no setup key (pass a setup code)")
	ErrUsage        = errors.New("usage")
)

// DialFunc opens a link to target, which is either a host:port address or
// an accessory id to resolve over mDNS.
type DialFunc func(ctx context.Context, target string) (*transport.Client, error)

// Config configures a Shell.
type Config struct {
	// SetupSecret is used by setup when no setup code is given.
	SetupSecret secure.Key

	// Keyring stores the credentials obtained by setup and confirm.
	Keyring *Keyring

	// Browser resolves accessory ids and serves discover. Optional.
	Browser discovery.Browser

	// Dial overrides how connect opens links.
	Dial DialFunc

	// ChunkSize and Timeout are passed to the client.
	ChunkSize int
	Timeout   time.Duration

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Shell handles interactive mode for solarlink-client.
type Shell struct {
	config Config
	out    io.Writer
	rl     *readline.Instance
	now    func() time.Time

	accessory uuid.UUID
	client    *client.Client
}

// New creates a shell reading commands from the terminal.
func New(config Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "solarlink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(config, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(config Config, out io.Writer) *Shell {
	s := &Shell{config: config, out: out, now: time.Now}
	if s.config.Dial == nil {
		s.config.Dial = s.dial
	}
	return s
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	defer s.disconnect()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if !s.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the shell should keep
// running.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "discover":
		err = s.cmdDiscover(ctx)
	case "connect", "c":
		err = s.cmdConnect(ctx, args)
	case "disconnect":
		s.disconnect()
	case "services", "ls":
		err = s.cmdServices()
	case "read", "r":
		err = s.cmdRead(ctx, args)
	case "setup":
		err = s.cmdSetup(ctx, args)
	case "invite":
		err = s.cmdInvite(ctx, args)
	case "confirm":
		err = s.cmdConfirm(ctx, args)
	case "revoke":
		err = s.cmdRevoke(ctx, args)
	case "credentials", "creds":
		err = s.cmdCredentials(ctx)
	case "command", "cmd":
		err = s.cmdCommand(ctx, args)
	case "identify":
		err = s.withClient(func(c *client.Client) error { return c.Identify(ctx) })
	case "power":
		err = s.cmdPower(ctx, args)
	case "whoami":
		s.cmdWhoami()
	case "forget":
		err = s.cmdForget()
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return true
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
SolarLink Client Commands:
  Connection:
    discover                        - Browse for accessories
    connect <address|accessory-id>  - Connect to an accessory
    disconnect                      - Close the connection
    services                        - List services and attributes

  Credentials:
    setup <name> [setup-code]       - Claim an unconfigured accessory
    invite <name> [user|admin] [ttl]- Mint an invitation (ttl e.g. 24h)
    confirm <id> <secret>           - Redeem an invitation
    revoke <id>                     - Remove a credential or invitation
    credentials                     - List credentials
    whoami                          - Show the credential in use
    forget                          - Drop the saved credential

  Inverter:
    read <attribute>                - Read an attribute (e.g. batteryLevel)
    command <query>                 - Send an inverter query (e.g. QPIGS)
    identify                        - Ask the accessory to identify itself
    power on|off                    - Switch the inverter output

  General:
    help                            - Show this help
    quit                            - Exit`)
}

func (s *Shell) cmdDiscover(ctx context.Context) error {
	if s.config.Browser == nil {
		return errors.New("discovery is not available")
	}
	fmt.Fprintln(s.out, "Browsing for accessories...")

	browseCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	results, err := s.config.Browser.Browse(browseCtx)
	if err != nil {
		return err
	}

	n := 0
	for svc := range results {
		n++
		printAccessory(s.out, n, svc)
	}
	if n == 0 {
		fmt.Fprintln(s.out, "No accessories found")
	}
	return nil
}

func (s *Shell) cmdConnect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: connect <address|accessory-id>", ErrUsage)
	}
	s.disconnect()

	link, err := s.config.Dial(ctx, args[0])
	if err != nil {
		return err
	}
	c, err := client.New(ctx, link, client.Config{
		ChunkSize: s.config.ChunkSize,
		Timeout:   s.config.Timeout,
		Logger:    s.logger(),
	})
	if err != nil {
		link.Close()
		return err
	}

	v, err := c.Read(ctx, profile.IdentifierType)
	if err != nil {
		c.Close()
		return fmt.Errorf("read accessory id: %w", err)
	}
	id, _ := v.AsUUID()
	s.accessory, s.client = id, c

	if s.config.Keyring != nil {
		entry, ok, err := s.config.Keyring.Lookup(id)
		if err != nil {
			s.logger().Warn("keyring lookup failed", "error", err)
		} else if ok {
			c.SetCredential(entry.ID, entry.Secret)
		}
	}

	configured, err := c.IsConfigured(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Connected to %s (configured: %t)\n", id, configured)
	return nil
}

// dial is the default DialFunc.
func (s *Shell) dial(ctx context.Context, target string) (*transport.Client, error) {
	address := target
	if id, err := uuid.Parse(target); err == nil {
		if s.config.Browser == nil {
			return nil, fmt.Errorf("cannot resolve %s without discovery", id)
		}
		svc, err := s.config.Browser.Find(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", id, err)
		}
		address = svc.Addr()
	}
	return transport.Dial(ctx, address, transport.ClientConfig{
		Logger:         s.logger(),
		ProtocolLogger: s.config.ProtocolLogger,
	})
}

func (s *Shell) disconnect() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger().Debug("close link", "error", err)
	}
	s.client, s.accessory = nil, uuid.Nil
}

// logger defaults to slog.Default() at the time of use, so a default
// installed after New still applies.
func (s *Shell) logger() *slog.Logger {
	if s.config.Logger != nil {
		return s.config.Logger
	}
	return slog.Default()
}

func (s *Shell) withClient(fn func(*client.Client) error) error {
	if s.client == nil {
		return ErrNotConnected
	}
	return fn(s.client)
}

func (s *Shell) cmdServices() error {
	return s.withClient(func(c *client.Client) error {
		printServices(s.out, c.Session().Cache())
		return nil
	})
}

func (s *Shell) cmdRead(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: read <attribute>", ErrUsage)
	}
	attrType, ok := profile.TypeByName(args[0])
	if !ok {
		return fmt.Errorf("unknown attribute %q", args[0])
	}
	return s.withClient(func(c *client.Client) error {
		v, err := c.Read(ctx, attrType)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s = %s\n", args[0], formatValue(v))
		return nil
	})
}

func (s *Shell) cmdSetup(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: setup <name> [setup-code]", ErrUsage)
	}
	return s.withClient(func(c *client.Client) error {
		setupKey := s.config.SetupSecret
		if len(args) == 2 {
			k, err := auth.DeriveSetupKey(args[1], s.accessory)
			if err != nil {
				return err
			}
			setupKey = k
		}
		if setupKey.IsZero() {
			return ErrNoSetupKey
		}

		id, secret, err := c.Setup(ctx, setupKey, args[0])
		if err != nil {
			return err
		}
		s.remember(Entry{ID: id, Name: args[0], Secret: secret})
		fmt.Fprintf(s.out, "Accessory configured, owner credential %s\n", id)
		return nil
	})
}

func (s *Shell) cmdInvite(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return fmt.Errorf("%w: invite <name> [user|admin] [ttl]", ErrUsage)
	}
	perm := credential.PermissionUser
	if len(args) > 1 {
		p, err := credential.ParsePermission(args[1])
		if err != nil {
			return err
		}
		perm = p
	}
	var ttl string
	if len(args) > 2 {
		ttl = args[2]
	}
	expiresAt, err := parseTTL(ttl, s.now())
	if err != nil {
		return err
	}

	return s.withClient(func(c *client.Client) error {
		inv, err := c.Invite(ctx, args[0], perm, expiresAt)
		if err != nil {
			return err
		}
		secret, err := inv.Secret.MarshalText()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Invitation for %s (%s)\n", inv.Name, perm)
		fmt.Fprintf(s.out, "  id:     %s\n", inv.ID)
		fmt.Fprintf(s.out, "  secret: %s\n", secret)
		if !expiresAt.IsZero() {
			fmt.Fprintf(s.out, "  expires: %s\n", expiresAt.Format(time.RFC3339))
		}
		return nil
	})
}

func (s *Shell) cmdConfirm(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: confirm <id> <secret>", ErrUsage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	pending, err := secure.ParseKey(args[1])
	if err != nil {
		return fmt.Errorf("invalid secret: %w", err)
	}

	return s.withClient(func(c *client.Client) error {
		secret, err := c.Confirm(ctx, id, pending)
		if err != nil {
			return err
		}
		s.remember(Entry{ID: id, Secret: secret})
		fmt.Fprintf(s.out, "Invitation confirmed, now using credential %s\n", id)
		return nil
	})
}

func (s *Shell) cmdRevoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: revoke <id>", ErrUsage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	return s.withClient(func(c *client.Client) error {
		if err := c.Revoke(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Revoked %s\n", id)
		return nil
	})
}

func (s *Shell) cmdCredentials(ctx context.Context) error {
	return s.withClient(func(c *client.Client) error {
		items, err := c.Credentials(ctx)
		if err != nil {
			return err
		}
		printRoster(s.out, items)
		return nil
	})
}

func (s *Shell) cmdCommand(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: command <query>", ErrUsage)
	}
	return s.withClient(func(c *client.Client) error {
		resp, err := c.Command(ctx, strings.ToUpper(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, resp)
		return nil
	})
}

func (s *Shell) cmdPower(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return fmt.Errorf("%w: power on|off", ErrUsage)
	}
	return s.withClient(func(c *client.Client) error {
		if err := c.SetPower(ctx, args[0] == "on"); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Output switched %s\n", args[0])
		return nil
	})
}

func (s *Shell) cmdWhoami() {
	if s.client == nil {
		fmt.Fprintln(s.out, "Not connected")
		return
	}
	id, _ := s.client.Credential()
	if id == uuid.Nil {
		fmt.Fprintf(s.out, "Accessory %s, no credential\n", s.accessory)
		return
	}
	fmt.Fprintf(s.out, "Accessory %s, credential %s\n", s.accessory, id)
}

// cmdForget drops the saved credential for the connected accessory and
// stops using it.
func (s *Shell) cmdForget() error {
	if s.client == nil {
		return ErrNotConnected
	}
	if s.config.Keyring != nil {
		if err := s.config.Keyring.Forget(s.accessory); err != nil {
			return err
		}
	}
	s.client.SetCredential(uuid.Nil, secure.Key{})
	fmt.Fprintf(s.out, "Forgot credential for %s\n", s.accessory)
	return nil
}

// remember stores a new credential in the keyring. Failure is reported but
// the credential stays usable for this session.
func (s *Shell) remember(e Entry) {
	if s.config.Keyring == nil {
		return
	}
	if err := s.config.Keyring.Store(s.accessory, e); err != nil {
		fmt.Fprintf(s.out, "Warning: credential not saved: %v\n", err)
	}
}
