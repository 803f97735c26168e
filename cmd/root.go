// Package cmd wires up the CLI flags and dispatches to the server core.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"filegate/config"
	"filegate/internal/auth"
	"filegate/internal/core"
	"filegate/internal/httpwire"
	"filegate/internal/transport"
	"filegate/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X filegate/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Swapped by tests.
var (
	stdin  io.Reader = os.Stdin  //nolint:gochecknoglobals
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
)

// Execute parses args and runs the server (or one of the one-shot
// helper commands).
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("filegate", flag.ContinueOnError)

	// ── server ───────────────────────────────────────────────────────
	fs.StringVarP(&cfg.Root, "root", "r", cfg.Root, "Directory to serve")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "TCP port to listen on")
	fs.StringVarP(&cfg.BindAddress, "bind", "b", cfg.BindAddress, "Address to bind")
	fs.StringVar(&cfg.UsersFile, "users", cfg.UsersFile, "File of user:password lines (default: demo accounts)")
	fs.IntVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "Seconds between expired-session sweeps (0 disables)")

	// ── SSH exposure ─────────────────────────────────────────────────
	fs.StringVar(&cfg.ExposeSpec, "expose", cfg.ExposeSpec, "Publish on an SSH gateway [user@]host[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Port to open on the gateway")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind", cfg.RemoteBindAddress, "Address to bind on the gateway")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.IntVar(&cfg.KeepAliveInterval, "keep-alive", cfg.KeepAliveInterval, "SSH keepalive interval in seconds (0 disables)")
	fs.BoolVar(&cfg.AutoReconnect, "auto-reconnect", cfg.AutoReconnect, "Re-establish the gateway connection when it drops")
	fs.BoolVar(&cfg.CheckGatewayPorts, "check-gateway-ports", cfg.CheckGatewayPorts, "Warn when the gateway ignores --remote-bind")

	// ── helpers ──────────────────────────────────────────────────────
	var hashPw, dryRun bool
	var probePath string
	fs.BoolVar(&hashPw, "hash-password", false, "Prompt for a password and print its bcrypt hash")
	fs.StringVar(&probePath, "probe", "", "GET PATH from the configured address and print the status")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	// ── output ───────────────────────────────────────────────────────
	verbose := fs.CountP("verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "filegate %s\n", version)
		return nil
	}
	if fs.Changed("verbose") {
		cfg.Verbose = 1 + *verbose
	}

	if hashPw {
		return hashPassword(stdin, stdout)
	}
	if probePath != "" {
		return probe(ctx, cfg, probePath, stdout)
	}

	// ── validate ─────────────────────────────────────────────────────
	if err := cfg.ApplyExposeSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintf(stdout, "configuration OK: serving %s on %s\n", cfg.Root, describeListener(mode))
		return nil
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func describeListener(m core.Mode) string {
	if sm, ok := m.(*core.ServeMode); ok {
		return sm.Listener.String()
	}
	return "?"
}

// hashPassword reads one password and prints its bcrypt hash, ready to
// paste into a --users file.
func hashPassword(in io.Reader, out io.Writer) error {
	secret, err := readSecret(in)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	h, err := auth.HashPassword(secret, auth.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, h)
	return nil
}

// readSecret prompts without echo on a terminal and otherwise reads the
// first line of in.
func readSecret(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// probe performs one GET against a running server and prints the status
// line.  A redirect counts as healthy since most paths require a login.
func probe(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	addr := cfg.ProbeAddress()

	ctx, cancel := context.WithTimeout(ctx, config.DefaultProbeTimeout)
	defer cancel()

	d := &transport.TCPDialer{Timeout: config.DefaultProbeTimeout}
	defer d.Close()

	conn, err := d.Dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(config.DefaultProbeTimeout)) //nolint:errcheck

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, addr); err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	resp, err := httpwire.ReadResponse(conn)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}

	fmt.Fprintf(out, "%d %s\n", resp.StatusCode, resp.StatusMessage)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe %s: %s answered %d", addr, path, resp.StatusCode)
	}
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `filegate – authenticated static file server v%s

Serves a directory over HTTP/1.1 behind a session login, with a JSON
API for stats and listings.  Optionally publishes itself on an SSH
gateway instead of a local port.

Usage:
  filegate [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  FILEGATE_ROOT, FILEGATE_PORT, FILEGATE_BIND, FILEGATE_USERS, FILEGATE_EXPOSE, …
  (flags take precedence)

Examples:
  filegate -r ./site -p 8080                  Serve ./site on :8080
  filegate --users users.txt                  Use your own accounts
  filegate --hash-password >> users.txt       Hash a password (then prefix "name:")
  filegate --expose tunnel@gw --remote-port 80   Publish through an SSH gateway
  filegate --probe /login                     Health-check a running server
`)
}
