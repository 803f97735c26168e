// Package router turns a parsed request into a response.
//
// Dispatch is a fixed chain: method check, login/logout, the JSON API,
// the session gate, and finally sandboxed static files and directory
// listings under the configured root.  Every failure is mapped to a
// status code and rendered as an HTML error page; Handle never returns
// nil and never panics.
package router

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"filegate/internal/auth"
	ferrors "filegate/internal/errors"
	"filegate/internal/httpwire"
	"filegate/internal/metrics"
	"filegate/internal/pages"
	"filegate/internal/session"
	"filegate/util"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "sessionId"

// Router holds the state shared by all requests.  It is safe for
// concurrent use.
type Router struct {
	root     string
	sessions *session.Store
	users    *auth.Validator
	metrics  *metrics.Collector
	logger   *util.Logger
}

// New returns a Router serving files below root.  root is made absolute
// and cleaned once here; every request is checked against that form.
func New(root string, sessions *session.Store, users *auth.Validator, m *metrics.Collector, logger *util.Logger) (*Router, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	if sessions == nil || users == nil {
		return nil, fmt.Errorf("router needs a session store and a validator")
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Router{
		root:     filepath.Clean(abs),
		sessions: sessions,
		users:    users,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Root returns the absolute served directory.
func (r *Router) Root() string { return r.root }

// Handle dispatches req.  A panic anywhere below is logged and turned
// into a 500.
func (r *Router) Handle(req *httpwire.Request) (resp *httpwire.Response) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic handling %s %s: %v", req.Method, req.Path, p)
			r.metrics.RecordError(fmt.Sprintf("panic: %v", p))
			resp = ErrorResponse(500, "Internal Server Error")
		}
	}()

	resp, err := r.dispatch(req)
	if err != nil {
		return r.fail(req, err)
	}
	return resp
}

func (r *Router) dispatch(req *httpwire.Request) (*httpwire.Response, error) {
	if req.Method != "GET" && req.Method != "POST" {
		return nil, ferrors.Status(405, "Method Not Allowed", nil)
	}
	r.metrics.RequestDispatched()

	p, err := requestPath(req.Path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.EqualFold(p, "/login"):
		return r.handleLogin(req), nil
	case strings.EqualFold(p, "/logout"):
		return r.handleLogout(req), nil
	case hasPrefixFold(p, "/api/"):
		return r.handleAPI(p)
	}

	if _, ok := r.sessionFor(req); !ok && !isPublic(p) {
		return redirect("/login"), nil
	}

	if p == "" || p == "/" {
		p = "/index.html"
	}
	return r.serveStatic(p)
}

// fail renders err as an error page.  Errors without an explicit
// status are unexpected and get logged.
func (r *Router) fail(req *httpwire.Request, err error) *httpwire.Response {
	var he *ferrors.HTTPError
	if ferrors.As(err, &he) {
		if he.Err != nil {
			r.logger.Verbose("%s %s: %v", req.Method, req.Path, he.Err)
		}
		return ErrorResponse(he.Status, he.Message)
	}
	r.logger.Error("%s %s: %v", req.Method, req.Path, err)
	r.metrics.RecordError(err.Error())
	return ErrorResponse(500, "Internal Server Error")
}

func (r *Router) sessionFor(req *httpwire.Request) (session.Session, bool) {
	token, ok := req.Cookies.Lookup(SessionCookie)
	if !ok {
		return session.Session{}, false
	}
	return r.sessions.Get(token)
}

func (r *Router) handleLogin(req *httpwire.Request) *httpwire.Response {
	if req.Method != "POST" {
		return htmlResponse(200, pages.Login(""))
	}

	username := req.Form.Get("username")
	password := req.Form.Get("password")
	if !r.users.Validate(username, password) {
		r.logger.Verbose("login %q: %v", username, ferrors.ErrAuthFailed)
		return htmlResponse(200, pages.Login("Invalid username or password"))
	}

	sess, err := r.sessions.Create(username)
	if err != nil {
		r.logger.Error("create session: %v", err)
		r.metrics.RecordError(err.Error())
		return ErrorResponse(500, "Internal Server Error")
	}
	r.logger.Info("user %q logged in", username)

	resp := redirect("/")
	resp.SetCookie(SessionCookie, sess.Token, int(session.Timeout.Seconds()), true)
	return resp
}

func (r *Router) handleLogout(req *httpwire.Request) *httpwire.Response {
	if token, ok := req.Cookies.Lookup(SessionCookie); ok {
		r.sessions.Remove(token)
	}
	resp := redirect("/login")
	resp.SetCookie(SessionCookie, "", 0, true)
	return resp
}

// ── Helpers ──────────────────────────────────────────────────────────

// requestPath drops the query string and percent-decodes the target.
func requestPath(target string) (string, error) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	p, err := url.PathUnescape(target)
	if err != nil {
		return "", ferrors.Status(400, "Bad Request", err)
	}
	return p, nil
}

var publicExtensions = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".ico": true, ".svg": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true,
}

// isPublic reports whether p may be fetched without a session.
func isPublic(p string) bool {
	if strings.EqualFold(p, "/login") || strings.EqualFold(p, "/login.html") {
		return true
	}
	return publicExtensions[strings.ToLower(filepath.Ext(p))]
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func redirect(location string) *httpwire.Response {
	resp := httpwire.NewResponse(302)
	resp.SetHeader("Location", location)
	return resp
}

func htmlResponse(code int, body []byte) *httpwire.Response {
	resp := httpwire.NewResponse(code)
	resp.SetHeader("Content-Type", "text/html; charset=utf-8")
	resp.Body = body
	return resp
}

// ErrorResponse builds an HTML error page.  message doubles as the
// reason phrase so clients see e.g. "413 File Too Large".
func ErrorResponse(code int, message string) *httpwire.Response {
	resp := htmlResponse(code, pages.Error(code, message))
	resp.StatusMessage = message
	return resp
}
