package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	ferrors "filegate/internal/errors"
	"filegate/util"
)

// dialSSH establishes an authenticated SSH connection to the gateway.
func (e *Exposure) dialSSH(ctx context.Context) (*ssh.Client, error) {
	cfg := e.cfg.SSH

	authMethods, err := BuildAuthMethods(cfg)
	if err != nil {
		return nil, ferrors.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}

	hkCb, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, ferrors.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hkCb,
		Timeout:         cfg.ConnTimeout,
		// Public tunnel services print the assigned URL in the
		// pre-auth banner.
		BannerCallback: func(message string) error {
			e.logBanner(message)
			return nil
		},
	}

	addr := util.FormatAddr(cfg.Host, cfg.Port)
	e.logger.Debug("tunnel: dialing SSH %s as %s", addr, cfg.User)

	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ferrors.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return nil, ferrors.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.drainServerMessages(client)
	}()

	return client, nil
}

// validateGatewayPorts performs a best-effort check that the remote
// server allows non-loopback bind addresses (GatewayPorts).
func (e *Exposure) validateGatewayPorts(client *ssh.Client) error {
	port, err := util.FindFreePort()
	if err != nil {
		return fmt.Errorf("finding test port: %w", err)
	}

	ln, err := client.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf(
			"GatewayPorts appears disabled on %s - "+
				"set \"GatewayPorts yes\" or \"GatewayPorts clientspecified\" "+
				"in sshd_config: %w",
			e.cfg.SSH.Host, err)
	}
	ln.Close()

	e.logger.Debug("GatewayPorts validation passed")
	return nil
}

// drainServerMessages copies the output of a shell session to the log.
// Services like serveo.net report the public URL this way; gateways
// that refuse sessions are ignored.
func (e *Exposure) drainServerMessages(client *ssh.Client) {
	sess, err := client.NewSession()
	if err != nil {
		e.logger.Debug("tunnel: session for server messages: %v", err)
		return
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return
	}
	_ = sess.Shell()

	var wg sync.WaitGroup
	printStream := func(r io.Reader) {
		defer wg.Done()
		buf := make([]byte, 4096)
		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				e.logBanner(string(buf[:n]))
			}
			if readErr != nil {
				return
			}
		}
	}

	wg.Add(2)
	go printStream(stdout)
	go printStream(stderr)
	wg.Wait()
}

func (e *Exposure) logBanner(msg string) {
	for _, line := range strings.Split(strings.TrimRight(msg, "\r\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			e.logger.Info("gateway: %s", line)
		}
	}
}
