package core

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"filegate/config"
	"filegate/internal/capability"
	ferrors "filegate/internal/errors"
	"filegate/internal/metrics"
	"filegate/internal/session"
	"filegate/internal/transport"
	"filegate/util"
)

// Accept retry delays for temporary failures such as EMFILE.
const (
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

// ServeMode accepts connections and hands each one to the capability
// on its own goroutine.  The accept loop never waits on a worker.
type ServeMode struct {
	Listener   transport.Listener
	Capability capability.Capability
	Metrics    *metrics.Collector
	Logger     *util.Logger

	// Sessions is swept every CleanupInterval while the server runs.
	// A nil store or a zero interval disables the sweep.
	Sessions        *session.Store
	CleanupInterval time.Duration

	// GracePeriod bounds how long Run waits for in-flight exchanges
	// after shutdown (default config.DefaultGracePeriod).
	GracePeriod time.Duration

	// Ready, if set, is called with the bound address before the
	// first Accept.
	Ready func(net.Addr)
}

// Run binds the listener and serves until ctx is cancelled or the
// listener fails permanently.
func (m *ServeMode) Run(ctx context.Context) error {
	ln, err := m.Listener.Listen(ctx)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer ln.Close()

	m.Logger.Info("serving on %s (%s)", ln.Addr(), m.Listener)
	if m.Ready != nil {
		m.Ready(ln.Addr())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Shut the listener down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	if m.Sessions != nil {
		go m.Sessions.Run(ctx, m.CleanupInterval, func(n int) {
			if n > 0 {
				m.Logger.Verbose("session janitor: expired %d session(s)", n)
			}
		})
	}

	var wg sync.WaitGroup
	err = m.acceptLoop(ctx, ln, &wg)
	m.drain(&wg)
	m.Logger.Debug("final metrics:\n%s", m.Metrics.JSON())
	return err
}

// ── Accept loop ──────────────────────────────────────────────────────

func (m *ServeMode) acceptLoop(ctx context.Context, ln net.Listener, wg *sync.WaitGroup) error {
	// Workers outlive the accept loop during the grace period, so they
	// must not see the shutdown cancellation.
	workerCtx := context.WithoutCancel(ctx)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ferrors.IsTemporary(err) {
				delay = nextAcceptDelay(delay)
				m.Logger.Warn("accept: %v; retrying in %v", err, delay)
				m.Metrics.RecordError("accept: " + err.Error())
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return fmt.Errorf("accept: %w", err)
		}
		delay = 0

		m.Logger.Debug("connection from %s", conn.RemoteAddr())
		wg.Add(1)
		go m.serveConn(workerCtx, conn, wg)
	}
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return acceptRetryMin
	}
	d *= 2
	if d > acceptRetryMax {
		d = acceptRetryMax
	}
	return d
}

// serveConn runs the capability for one connection.  A panic is
// contained to this connection.
func (m *ServeMode) serveConn(ctx context.Context, conn net.Conn, wg *sync.WaitGroup) {
	defer wg.Done()

	m.Metrics.ConnectionOpened()
	defer m.Metrics.ConnectionClosed()

	defer func() {
		if r := recover(); r != nil {
			conn.Close()
			m.Metrics.RecordError(fmt.Sprintf("panic: %v", r))
			m.Logger.Error("connection %s: panic: %v", conn.RemoteAddr(), r)
		}
	}()

	if err := m.Capability.Handle(ctx, conn); err != nil {
		m.Logger.Verbose("connection %s: %v", conn.RemoteAddr(), err)
	}
}

// drain waits for in-flight workers, at most GracePeriod.
func (m *ServeMode) drain(wg *sync.WaitGroup) {
	grace := m.GracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.Logger.Verbose("all connections drained")
	case <-time.After(grace):
		m.Logger.Warn("%d connection(s) still active after %v; exiting",
			m.Metrics.ActiveConnections(), grace)
	}
}
