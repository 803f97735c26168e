package tunnel

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	ferrors "filegate/internal/errors"
	"filegate/internal/retry"
)

// keepaliveLoop pings the gateway every KeepAliveInterval.  On failure
// it closes ln, which makes a blocked Accept fail and reconnect.
func (e *Exposure) keepaliveLoop(client *ssh.Client, ln net.Listener) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				if e.ctx.Err() != nil {
					return
				}
				e.logger.Warn("SSH keepalive failed: %v", err)
				e.metrics.RecordError(fmt.Sprintf("keepalive: %v", err))
				ln.Close()
				return
			}
			e.metrics.RecordHealthCheck()
			e.logger.Debug("SSH keepalive OK")
		}
	}
}

// reconnect replaces a dead client and forward.  It is only called
// from Accept.
func (e *Exposure) reconnect() error {
	e.logger.Info("tunnel: reconnecting...")

	e.mu.Lock()
	if e.ln != nil {
		e.ln.Close()
		e.ln = nil
	}
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	e.mu.Unlock()

	b := e.cfg.Reconnect
	if b == nil {
		b = retry.DefaultBackoff()
	}
	err := b.Do(e.ctx, func(attempt int) error {
		if err := e.connect(); err != nil {
			e.logger.Warn("reconnect attempt %d: %v", attempt, err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ferrors.ErrTunnelClosed, err)
	}

	e.metrics.TunnelReconnect()
	e.logger.Info("tunnel: reconnected")
	return nil
}
