package capability

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	ferrors "filegate/internal/errors"
	"filegate/internal/httpwire"
	"filegate/internal/metrics"
	"filegate/internal/retry"
	"filegate/internal/router"
	"filegate/util"
)

// Body read budget: a client that goes silent mid-body gets
// BodyReadAttempts empty reads, each waiting BodyReadInterval, before
// the request is abandoned.
const (
	BodyReadInterval = 100 * time.Millisecond
	BodyReadAttempts = 30
)

// Handler produces the response for a parsed request.  *router.Router
// is the production implementation.
type Handler interface {
	Handle(req *httpwire.Request) *httpwire.Response
}

// HTTP serves exactly one request per connection.
type HTTP struct {
	Handler Handler
	Metrics *metrics.Collector
	Logger  *util.Logger

	// Zero values select BodyReadInterval and BodyReadAttempts.
	ReadInterval time.Duration
	ReadAttempts int
}

var errIncompleteBody = ferrors.New("connection closed before body was complete")

// Handle reads the request, dispatches it and writes the response.
func (h *HTTP) Handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	log := h.Logger.With("req", uuid.NewString()[:8]).With("remote", conn.RemoteAddr().String())
	start := time.Now()

	var resp *httpwire.Response
	req, err := h.readRequest(ctx, conn)
	switch {
	case err == nil && req == nil:
		log.Debug("closed without sending data")
		return nil
	case err != nil:
		status := ferrors.StatusOf(err)
		if status >= 500 {
			log.Warn("read request: %v", err)
			h.Metrics.RecordError(err.Error())
		} else {
			log.Verbose("rejecting request: %v", err)
		}
		resp = router.ErrorResponse(status, statusMessage(err))
	default:
		resp = h.Handler.Handle(req)
	}

	n, werr := httpwire.WriteResponse(conn, resp)
	h.Metrics.BytesSent(n)
	if req != nil {
		log.Info("%s %s → %d (%s)", req.Method, req.Path, resp.StatusCode, time.Since(start).Truncate(time.Microsecond))
	}
	if werr != nil && !util.IsHarmless(werr) {
		h.Metrics.RecordError(werr.Error())
		return ferrors.Wrap("write", conn.RemoteAddr().String(), werr)
	}
	return nil
}

// readRequest returns (nil, nil) when the client sent nothing.  On
// failure the error carries the status to answer with.
func (h *HTTP) readRequest(ctx context.Context, conn net.Conn) (*httpwire.Request, error) {
	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	n, head, rest, err := readHead(conn, buf)
	h.Metrics.BytesReceived(int64(n))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	req, err := httpwire.ParseRequest(head)
	if err != nil {
		return nil, ferrors.Status(400, "Bad Request", err)
	}

	if cl, ok := req.ContentLength(); ok && cl > 0 {
		if cl > httpwire.MaxBodySize {
			return nil, ferrors.Status(413, "Payload Too Large", ferrors.ErrBodyTooLarge)
		}
		body, read, err := h.readBody(ctx, conn, rest, cl)
		h.Metrics.BytesReceived(int64(read))
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	if req.IsForm() {
		httpwire.ParseFormData(req)
	}
	return req, nil
}

// readHead fills buf until the blank line ending the head is seen.  A
// client that closes early has whatever it sent parsed as the head.
func readHead(conn net.Conn, buf []byte) (n int, head string, rest []byte, err error) {
	for n < len(buf) {
		m, rerr := conn.Read(buf[n:])
		n += m
		if h, r, ok := httpwire.SplitHead(buf[:n]); ok {
			return n, h, r, nil
		}
		if rerr != nil {
			if util.IsHarmless(rerr) {
				return n, string(buf[:n]), nil, nil
			}
			return n, "", nil, ferrors.Wrap("read", conn.RemoteAddr().String(), rerr)
		}
	}
	return n, "", nil, ferrors.Status(400, "Bad Request", ferrors.ErrHeadTooLarge)
}

// readBody collects want bytes, starting with the ones that arrived
// alongside the head.  Reads that make progress are free; each read
// that times out empty spends one attempt of the budget.
func (h *HTTP) readBody(ctx context.Context, conn net.Conn, rest []byte, want int) ([]byte, int, error) {
	body := make([]byte, 0, want)
	if len(rest) > want {
		rest = rest[:want]
	}
	body = append(body, rest...)

	interval, attempts := h.ReadInterval, h.ReadAttempts
	if interval <= 0 {
		interval = BodyReadInterval
	}
	if attempts <= 0 {
		attempts = BodyReadAttempts
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	read := 0
	err := retry.Fixed(interval, attempts).Do(ctx, func(int) error {
		for len(body) < want {
			conn.SetReadDeadline(time.Now().Add(interval)) //nolint:errcheck
			m, err := conn.Read(body[len(body):want])
			body = body[:len(body)+m]
			read += m
			if err == nil {
				continue
			}
			if ferrors.IsTimeout(err) {
				if m > 0 {
					continue
				}
				return err
			}
			if util.IsHarmless(err) {
				return retry.Permanent(ferrors.Status(400, "Bad Request", errIncompleteBody))
			}
			return retry.Permanent(ferrors.Wrap("read", conn.RemoteAddr().String(), err))
		}
		return nil
	})
	if err != nil {
		if ferrors.IsTimeout(err) {
			err = ferrors.Status(500, "Internal Server Error",
				fmt.Errorf("%w after %d bytes of %d: %v", ferrors.ErrBodyTimeout, len(body), want, err))
		}
		return nil, read, err
	}
	return body, read, nil
}

func statusMessage(err error) string {
	var he *ferrors.HTTPError
	if ferrors.As(err, &he) {
		return he.Message
	}
	return "Internal Server Error"
}
