// Package tunnel publishes the server on a remote SSH gateway, the
// equivalent of `ssh -R`.  Instead of bridging forwarded connections
// to a local port, [Listen] returns a net.Listener whose Accept yields
// the forwarded channels themselves, so the HTTP acceptor serves them
// exactly like TCP connections.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ferrors "filegate/internal/errors"
	"filegate/internal/metrics"
	"filegate/internal/retry"
	"filegate/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// ExposeConfig describes the remote listener to request.
type ExposeConfig struct {
	SSH *SSHConfig

	RemoteBindAddress string // "" lets the gateway decide
	RemotePort        int

	CheckGatewayPorts bool
	KeepAliveInterval time.Duration // 0 disables keepalive
	AutoReconnect     bool

	// Reconnect overrides the backoff used after the gateway drops.
	Reconnect *retry.Backoff
}

// Exposure is a net.Listener backed by an SSH remote port forward.  A
// dead gateway connection is re-established transparently inside
// Accept when AutoReconnect is set.
type Exposure struct {
	cfg     *ExposeConfig
	logger  *util.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	client *ssh.Client
	ln     net.Listener
	closed bool
}

// Listen connects to the gateway and requests the remote forward.  The
// returned Exposure stops when ctx is cancelled or Close is called.
func Listen(ctx context.Context, cfg *ExposeConfig, logger *util.Logger, m *metrics.Collector) (*Exposure, error) {
	if cfg.SSH == nil {
		return nil, fmt.Errorf("tunnel: missing SSH config")
	}
	if cfg.SSH.Port == 0 {
		cfg.SSH.Port = 22
	}
	if cfg.SSH.ConnTimeout == 0 {
		cfg.SSH.ConnTimeout = 30 * time.Second
	}

	e := &Exposure{cfg: cfg, logger: logger, metrics: m}
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.connect(); err != nil {
		e.cancel()
		return nil, err
	}

	go func() {
		<-e.ctx.Done()
		e.Close() //nolint:errcheck
	}()
	return e, nil
}

// connect dials the gateway, requests the forward and starts the
// keepalive loop for the new client.
func (e *Exposure) connect() error {
	client, err := e.dialSSH(e.ctx)
	if err != nil {
		return err
	}

	if e.cfg.CheckGatewayPorts {
		if err := e.validateGatewayPorts(client); err != nil {
			client.Close()
			return err
		}
	}

	ln, err := listenRemoteForward(client, e.cfg.RemoteBindAddress, e.cfg.RemotePort)
	if err != nil {
		client.Close()
		return ferrors.WrapSSH("tcpip-forward", e.cfg.SSH.Host, e.cfg.SSH.Port,
			fmt.Errorf("remote listen on %s: %w", e.remoteAddr(), err))
	}

	e.mu.Lock()
	e.client = client
	e.ln = ln
	e.mu.Unlock()

	e.logger.Info("exposed on %s:%d as %s", e.cfg.SSH.Host, e.cfg.SSH.Port, e.remoteAddr())

	if e.cfg.KeepAliveInterval > 0 {
		e.wg.Add(1)
		go e.keepaliveLoop(client, ln)
	}
	return nil
}

// Accept returns the next forwarded connection.
func (e *Exposure) Accept() (net.Conn, error) {
	for {
		e.mu.Lock()
		ln, closed := e.ln, e.closed
		e.mu.Unlock()
		if closed {
			return nil, net.ErrClosed
		}
		if ln == nil {
			return nil, ferrors.ErrTunnelClosed
		}

		conn, err := ln.Accept()
		if err == nil {
			return conn, nil
		}
		if e.ctx.Err() != nil || e.isClosed() {
			return nil, net.ErrClosed
		}

		e.logger.Warn("tunnel accept: %v", err)
		e.metrics.RecordError(fmt.Sprintf("tunnel accept: %v", err))
		if !e.cfg.AutoReconnect {
			return nil, fmt.Errorf("%w: %v", ferrors.ErrTunnelClosed, err)
		}
		if err := e.reconnect(); err != nil {
			return nil, err
		}
	}
}

// Close cancels the forward and closes the SSH connection.
func (e *Exposure) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ln, client := e.ln, e.client
	e.ln, e.client = nil, nil
	e.mu.Unlock()

	e.cancel()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil {
			errs = append(errs, fmt.Errorf("listener close: %w", err))
		}
	}
	if client != nil {
		if err := client.Close(); err != nil && !util.IsHarmless(err) {
			errs = append(errs, fmt.Errorf("SSH close: %w", err))
		}
	}
	e.wg.Wait()
	return ferrors.Join(errs...)
}

// Addr reports the remote bind address.
func (e *Exposure) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(e.cfg.RemoteBindAddress), Port: e.cfg.RemotePort}
}

func (e *Exposure) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Exposure) remoteAddr() string {
	return util.FormatAddr(e.cfg.RemoteBindAddress, e.cfg.RemotePort)
}
