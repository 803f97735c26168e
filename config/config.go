// Package config defines the runtime configuration for filegate and
// provides the gateway-spec parser used by --expose.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	ferrors "filegate/internal/errors"
)

// Config holds every tuneable for one server process.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────
	Root            string // directory served to authenticated users
	BindAddress     string
	Port            int
	UsersFile       string // "" → built-in demo accounts
	CleanupInterval int    // seconds between session sweeps; 0 disables
	GracePeriod     time.Duration

	// ── SSH exposure (remote forward) ────────────────────────────────
	ExposeSpec        string // raw [user@]host[:port] from --expose
	ExposeEnabled     bool
	ExposeUser        string
	ExposeHost        string
	ExposePort        int
	RemotePort        int
	RemoteBindAddress string
	SSHKeyPath        string
	SSHPassword       bool // true → prompt interactively
	UseSSHAgent       bool
	StrictHostKey     bool
	KnownHostsPath    string
	KeepAliveInterval int // seconds; 0 disables
	AutoReconnect     bool
	CheckGatewayPorts bool

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Root:              DefaultRoot,
		BindAddress:       DefaultBindAddress,
		Port:              DefaultPort,
		CleanupInterval:   DefaultCleanupInterval,
		GracePeriod:       DefaultGracePeriod,
		KeepAliveInterval: DefaultKeepAliveInterval,
		Verbose:           1,
	}
}

// ListenAddress is the host:port the TCP listener binds.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// ProbeAddress is where a local health probe should connect.  A
// wildcard bind is reached through loopback.
func (c *Config) ProbeAddress() string {
	host := c.BindAddress
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// ApplyExposeSpec parses ExposeSpec into the Expose* fields.  An empty
// spec leaves exposure disabled.
func (c *Config) ApplyExposeSpec() error {
	if c.ExposeSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.ExposeSpec)
	if err != nil {
		return &ferrors.ConfigError{
			Field:   "expose",
			Value:   c.ExposeSpec,
			Message: err.Error(),
			Hint:    "use --expose user@gateway.example.com[:22]",
		}
	}
	c.ExposeEnabled = true
	c.ExposeUser = user
	c.ExposeHost = host
	c.ExposePort = port
	return nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent and
// resolves Root to an absolute path.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &ferrors.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "port out of range 1-65535",
			Hint:    fmt.Sprintf("the default is %d", DefaultPort),
		}
	}

	if err := c.validateRoot(); err != nil {
		return err
	}

	if c.CleanupInterval < 0 {
		return &ferrors.ConfigError{
			Field:   "cleanup-interval",
			Value:   c.CleanupInterval,
			Message: "must not be negative",
			Hint:    "use 0 to disable the session janitor",
		}
	}

	if c.UsersFile != "" {
		if _, err := os.Stat(c.UsersFile); err != nil {
			return &ferrors.ConfigError{
				Field:   "users",
				Value:   c.UsersFile,
				Message: "cannot read users file",
				Hint:    "one user:password or user:$2a$... bcrypt hash per line",
			}
		}
	}

	if c.ExposeEnabled {
		if c.ExposeHost == "" {
			return &ferrors.ConfigError{
				Field:   "expose",
				Message: "gateway host is required",
				Hint:    "use --expose user@gateway.example.com",
			}
		}
		if c.RemotePort < 1 || c.RemotePort > 65535 {
			return &ferrors.ConfigError{
				Field:   "remote-port",
				Value:   c.RemotePort,
				Message: "--expose requires a remote port in 1-65535",
				Hint:    "add --remote-port 8080 to choose the port opened on the gateway",
			}
		}
		if c.KeepAliveInterval < 0 {
			return &ferrors.ConfigError{
				Field:   "keep-alive",
				Value:   c.KeepAliveInterval,
				Message: "must not be negative",
				Hint:    "use 0 to disable SSH keepalives",
			}
		}
	} else if c.RemotePort != 0 {
		return &ferrors.ConfigError{
			Field:   "remote-port",
			Value:   c.RemotePort,
			Message: "only meaningful together with --expose",
			Hint:    "add --expose user@gateway",
		}
	}

	return nil
}

func (c *Config) validateRoot() error {
	if c.Root == "" {
		return &ferrors.ConfigError{
			Field:   "root",
			Message: "document root is required",
			Hint:    fmt.Sprintf("the default is ./%s", DefaultRoot),
		}
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return &ferrors.ConfigError{Field: "root", Value: c.Root, Message: err.Error()}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return &ferrors.ConfigError{
			Field:   "root",
			Value:   c.Root,
			Message: "directory does not exist",
			Hint:    "create it or point --root at an existing directory",
		}
	}
	if !info.IsDir() {
		return &ferrors.ConfigError{
			Field:   "root",
			Value:   c.Root,
			Message: "not a directory",
		}
	}
	c.Root = filepath.Clean(abs)
	return nil
}
