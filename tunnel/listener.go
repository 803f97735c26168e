package tunnel

// Go's ssh.Client.Listen registers forwarded-tcpip channels keyed by
// the exact bind address string it sent.  Many public tunnel services
// (serveo.net, localhost.run) echo back a different address (e.g.
// "0.0.0.0" when we sent ""), and the library then rejects every
// incoming channel with "no forward for address".  The listener below
// registers its own forwarded-tcpip handler and accepts every channel.

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ── Wire format structs (RFC 4254) ──────────────────────────────────

// channelForwardMsg is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" global requests (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// forwardedTCPPayload is the channel-open payload for
// "forwarded-tcpip" (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// ── sshForwardListener ──────────────────────────────────────────────

// sshForwardListener implements [net.Listener] over forwarded-tcpip
// channels.
type sshForwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// Accept waits for the next forwarded connection from the remote.
func (l *sshForwardListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case newCh, ok := <-l.incoming:
		if !ok {
			return nil, io.EOF
		}
		ch, reqs, err := newCh.Accept()
		if err != nil {
			return nil, fmt.Errorf("channel accept: %w", err)
		}
		go ssh.DiscardRequests(reqs)
		return newChanConn(ch, originAddr(newCh.ExtraData())), nil
	}
}

// Close cancels the remote port forward and unblocks Accept.
func (l *sshForwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

// Addr returns the listener's network address.
func (l *sshForwardListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// originAddr decodes the originator of a forwarded-tcpip channel.
func originAddr(extra []byte) net.Addr {
	var payload forwardedTCPPayload
	if err := ssh.Unmarshal(extra, &payload); err != nil {
		return &net.TCPAddr{}
	}
	return &net.TCPAddr{IP: net.ParseIP(payload.OriginAddr), Port: int(payload.OriginPort)}
}

// listenRemoteForward sends a tcpip-forward request and returns a
// listener for the channels the gateway opens back to us.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (net.Listener, error) {
	// Register our channel handler BEFORE the library can.
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{Addr: bindAddr, Port: uint32(bindPort)}
	ok, _, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward request denied by peer")
	}

	return &sshForwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: uint32(bindPort),
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

// ── chanConn ─────────────────────────────────────────────────────────

// chanConn adapts an [ssh.Channel] to [net.Conn].  SSH channels have
// no deadlines, so reads go through a pump goroutine and Read honours
// the read deadline by giving up on the wait.  A deadline set while a
// Read is already blocked applies from the next Read.  Write deadlines
// are not supported.
type chanConn struct {
	ch    ssh.Channel
	raddr net.Addr

	pumpOnce  sync.Once
	chunks    chan chunk
	done      chan struct{}
	closeOnce sync.Once

	readMu  sync.Mutex // serialises Read
	pending []byte
	rerr    error

	mu       sync.Mutex
	deadline time.Time
}

type chunk struct {
	b   []byte
	err error
}

func newChanConn(ch ssh.Channel, raddr net.Addr) *chanConn {
	return &chanConn{
		ch:     ch,
		raddr:  raddr,
		chunks: make(chan chunk),
		done:   make(chan struct{}),
	}
}

func (c *chanConn) pump() {
	for {
		buf := make([]byte, 4096)
		n, err := c.ch.Read(buf)
		select {
		case c.chunks <- chunk{b: buf[:n], err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *chanConn) Read(p []byte) (int, error) {
	c.pumpOnce.Do(func() { go c.pump() })

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	if c.rerr != nil {
		return 0, c.rerr
	}

	var timeout <-chan time.Time
	c.mu.Lock()
	dl := c.deadline
	c.mu.Unlock()
	if !dl.IsZero() {
		d := time.Until(dl)
		if d <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case ck := <-c.chunks:
		n := copy(p, ck.b)
		c.pending = ck.b[n:]
		c.rerr = ck.err
		if n == 0 && ck.err != nil {
			return 0, ck.err
		}
		return n, nil
	case <-timeout:
		return 0, os.ErrDeadlineExceeded
	case <-c.done:
		return 0, net.ErrClosed
	}
}

func (c *chanConn) Write(p []byte) (int, error) { return c.ch.Write(p) }

func (c *chanConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.ch.Close()
}

func (c *chanConn) LocalAddr() net.Addr  { return &net.TCPAddr{} }
func (c *chanConn) RemoteAddr() net.Addr { return c.raddr }

func (c *chanConn) SetDeadline(t time.Time) error { return c.SetReadDeadline(t) }

func (c *chanConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *chanConn) SetWriteDeadline(time.Time) error { return nil }
