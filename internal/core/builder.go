package core

import (
	"fmt"
	"os/user"
	"time"

	"filegate/config"
	"filegate/internal/auth"
	"filegate/internal/capability"
	"filegate/internal/metrics"
	"filegate/internal/retry"
	"filegate/internal/router"
	"filegate/internal/session"
	"filegate/internal/transport"
	"filegate/tunnel"
	"filegate/util"
)

// Build constructs the server from a validated configuration: the
// session store, credential validator, router and HTTP capability on
// top of a TCP listener, or an SSH remote forward with --expose.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	users := auth.DefaultUsers()
	if cfg.UsersFile != "" {
		var err error
		users, err = auth.LoadUsersFile(cfg.UsersFile)
		if err != nil {
			return nil, fmt.Errorf("users: %w", err)
		}
		logger.Verbose("loaded %d user(s) from %s", len(users), cfg.UsersFile)
	} else {
		logger.Warn("no --users file given; using built-in demo accounts")
	}

	validator, err := auth.NewValidator(users, auth.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}

	m := metrics.New()
	sessions := session.NewStore()

	rt, err := router.New(cfg.Root, sessions, validator, m, logger)
	if err != nil {
		return nil, err
	}

	return &ServeMode{
		Listener: buildListener(cfg, logger, m),
		Capability: &capability.HTTP{
			Handler: rt,
			Metrics: m,
			Logger:  logger,
		},
		Metrics:         m,
		Logger:          logger,
		Sessions:        sessions,
		CleanupInterval: time.Duration(cfg.CleanupInterval) * time.Second,
		GracePeriod:     cfg.GracePeriod,
	}, nil
}

// ── listener builders ────────────────────────────────────────────────

func buildListener(cfg *config.Config, logger *util.Logger, m *metrics.Collector) transport.Listener {
	if !cfg.ExposeEnabled {
		return &transport.TCPListener{Address: cfg.ListenAddress()}
	}

	var keepAlive time.Duration
	if cfg.KeepAliveInterval > 0 {
		keepAlive = time.Duration(cfg.KeepAliveInterval) * time.Second
	}

	return &transport.SSHListener{
		Config: &tunnel.ExposeConfig{
			SSH: &tunnel.SSHConfig{
				User:          exposeUser(cfg.ExposeUser),
				Host:          cfg.ExposeHost,
				Port:          cfg.ExposePort,
				KeyPath:       cfg.SSHKeyPath,
				PromptPass:    cfg.SSHPassword,
				UseAgent:      cfg.UseSSHAgent,
				StrictHostKey: cfg.StrictHostKey,
				KnownHosts:    cfg.KnownHostsPath,
				ConnTimeout:   config.DefaultConnTimeout,
			},
			RemoteBindAddress: cfg.RemoteBindAddress,
			RemotePort:        cfg.RemotePort,
			CheckGatewayPorts: cfg.CheckGatewayPorts,
			KeepAliveInterval: keepAlive,
			AutoReconnect:     cfg.AutoReconnect,
			Reconnect: &retry.Backoff{
				InitialDelay: time.Second,
				MaxDelay:     config.DefaultMaxReconnectBackoff,
				Multiplier:   2,
				MaxAttempts:  config.DefaultMaxReconnectAttempts,
				Jitter:       true,
			},
		},
		Logger:  logger,
		Metrics: m,
	}
}

// exposeUser falls back to the local account name, as ssh(1) does.
func exposeUser(name string) string {
	if name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
