package transport

import (
	"context"
	"fmt"
	"net"

	"filegate/internal/metrics"
	"filegate/tunnel"
	"filegate/util"
)

// SSHListener publishes the server on a remote SSH gateway.
type SSHListener struct {
	Config  *tunnel.ExposeConfig
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Listen dials the gateway and requests the remote forward.
func (l *SSHListener) Listen(ctx context.Context) (net.Listener, error) {
	l.Logger.Verbose("establishing SSH tunnel to %s@%s:%d",
		l.Config.SSH.User, l.Config.SSH.Host, l.Config.SSH.Port)

	ln, err := tunnel.Listen(ctx, l.Config, l.Logger, l.Metrics)
	if err != nil {
		return nil, fmt.Errorf("tunnel: %w", err)
	}
	return ln, nil
}

func (l *SSHListener) String() string {
	return fmt.Sprintf("ssh://%s@%s:%d -R %s:%d",
		l.Config.SSH.User, l.Config.SSH.Host, l.Config.SSH.Port,
		l.Config.RemoteBindAddress, l.Config.RemotePort)
}
