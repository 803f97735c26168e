package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	ferrors "filegate/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

// ── ApplyExposeSpec ──────────────────────────────────────────────────

func TestApplyExposeSpec(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyExposeSpec(); err != nil {
		t.Fatal(err)
	}
	if cfg.ExposeEnabled {
		t.Fatal("empty spec should leave exposure disabled")
	}

	cfg.ExposeSpec = "tunnel@gw.example.com:2222"
	if err := cfg.ApplyExposeSpec(); err != nil {
		t.Fatal(err)
	}
	if !cfg.ExposeEnabled || cfg.ExposeUser != "tunnel" ||
		cfg.ExposeHost != "gw.example.com" || cfg.ExposePort != 2222 {
		t.Errorf("got %+v", cfg)
	}

	cfg = Default()
	cfg.ExposeSpec = "u@h:0x"
	err := cfg.ApplyExposeSpec()
	var ce *ferrors.ConfigError
	if !ferrors.As(err, &ce) || ce.Field != "expose" {
		t.Fatalf("want ConfigError for expose, got %v", err)
	}
}

// ── Addresses ────────────────────────────────────────────────────────

func TestAddresses(t *testing.T) {
	cfg := Default()
	if got := cfg.ListenAddress(); got != "0.0.0.0:8080" {
		t.Errorf("ListenAddress = %q", got)
	}
	if got := cfg.ProbeAddress(); got != "127.0.0.1:8080" {
		t.Errorf("ProbeAddress = %q", got)
	}
	cfg.BindAddress = "192.0.2.7"
	if got := cfg.ProbeAddress(); got != "192.0.2.7:8080" {
		t.Errorf("ProbeAddress = %q", got)
	}
}

// ── Validate ─────────────────────────────────────────────────────────

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Root = t.TempDir()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig(t)
	cfg.Root = cfg.Root + string(filepath.Separator) + "."
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(cfg.Root) || strings.HasSuffix(cfg.Root, ".") {
		t.Errorf("Root not normalised: %q", cfg.Root)
	}
}

func TestValidate_RelativeRootResolved(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "site"), 0o755); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) }) //nolint:errcheck

	cfg := Default()
	cfg.Root = "site"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(filepath.Join(dir, "site"))
	got, _ := filepath.EvalSymlinks(cfg.Root)
	if got != want {
		t.Errorf("Root = %q, want %q", got, want)
	}
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages naming the offending flag.
func TestValidate_ErrorMessages(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
		wantHint  bool
	}{
		{"port zero", func(c *Config) { c.Port = 0 }, "port", true},
		{"port too big", func(c *Config) { c.Port = 70000 }, "port", true},
		{"empty root", func(c *Config) { c.Root = "" }, "root", true},
		{"missing root", func(c *Config) { c.Root = filepath.Join(c.Root, "nope") }, "root", true},
		{"root is file", func(c *Config) { c.Root = file }, "root", false},
		{"negative cleanup", func(c *Config) { c.CleanupInterval = -1 }, "cleanup-interval", true},
		{"missing users file", func(c *Config) { c.UsersFile = filepath.Join(c.Root, "users") }, "users", true},
		{"expose without remote port", func(c *Config) {
			c.ExposeEnabled, c.ExposeHost = true, "gw"
		}, "remote-port", true},
		{"expose without host", func(c *Config) {
			c.ExposeEnabled, c.RemotePort = true, 80
		}, "expose", true},
		{"remote port without expose", func(c *Config) { c.RemotePort = 80 }, "remote-port", true},
		{"negative keepalive", func(c *Config) {
			c.ExposeEnabled, c.ExposeHost, c.RemotePort = true, "gw", 80
			c.KeepAliveInterval = -5
		}, "keep-alive", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *ferrors.ConfigError
			if !ferrors.As(err, &ce) {
				t.Fatalf("want *ConfigError, got %T", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), "--"+tt.wantField) {
				t.Errorf("error %q should name --%s", err.Error(), tt.wantField)
			}
			if tt.wantHint != strings.Contains(err.Error(), "hint:") {
				t.Errorf("hint presence = %v in %q", !tt.wantHint, err.Error())
			}
		})
	}
}

func TestValidate_ExposeOK(t *testing.T) {
	cfg := validConfig(t)
	cfg.ExposeSpec = "gw.example.com"
	cfg.RemotePort = 9000
	if err := cfg.ApplyExposeSpec(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
