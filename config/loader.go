package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the FILEGATE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FILEGATE_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("FILEGATE_BIND"); v != "" {
		cfg.BindAddress = v
	}
	if v := envInt("FILEGATE_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("FILEGATE_USERS"); v != "" {
		cfg.UsersFile = v
	}
	if v, ok := envIntSet("FILEGATE_CLEANUP_INTERVAL"); ok {
		cfg.CleanupInterval = v
	}

	// SSH exposure
	if v := os.Getenv("FILEGATE_EXPOSE"); v != "" {
		cfg.ExposeSpec = v
	}
	if v := envInt("FILEGATE_REMOTE_PORT"); v > 0 {
		cfg.RemotePort = v
	}
	if v := os.Getenv("FILEGATE_REMOTE_BIND_ADDRESS"); v != "" {
		cfg.RemoteBindAddress = v
	}
	if v := os.Getenv("FILEGATE_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("FILEGATE_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("FILEGATE_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("FILEGATE_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("FILEGATE_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v, ok := envIntSet("FILEGATE_KEEP_ALIVE"); ok {
		cfg.KeepAliveInterval = v
	}
	if envBool("FILEGATE_AUTO_RECONNECT") {
		cfg.AutoReconnect = true
	}
	if envBool("FILEGATE_CHECK_GATEWAY_PORTS") {
		cfg.CheckGatewayPorts = true
	}

	// Output
	if v, ok := envIntSet("FILEGATE_VERBOSE"); ok {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	n, _ := envIntSet(key)
	return n
}

// envIntSet reports whether key holds a valid integer, so that an
// explicit 0 can override a non-zero default.
func envIntSet(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
