package httpwire

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Limits enforced while parsing a request.
const (
	MaxHeadSize      = 8 * 1024         // request line + headers
	MaxHeaderLines   = 100              // header lines after the request line
	MaxPathLength    = 2048             // raw request target
	MaxCookieHeader  = 4096             // a longer Cookie header is ignored
	MaxCookieName    = 100              // per cookie
	MaxCookieValue   = 4096             // per cookie
	MaxBodySize      = 10 * 1024 * 1024 // request body
	MaxFormPairs     = 1000             // pairs decoded from one body
	MaxFormKeyLength = 256              // decoded key
	MaxFormValLength = 8192             // decoded value
	formContentType  = "application/x-www-form-urlencoded"
)

var headTerminator = []byte("\r\n\r\n")

// Request is a parsed HTTP request.  Path is the raw request target,
// not yet decoded or normalized.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers Fields
	Cookies Fields
	Form    Fields
	Body    []byte
}

// ParseError reports why a request head was rejected.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "malformed request: " + e.Reason }

func parseErr(format string, args ...interface{}) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// SplitHead locates the end of the request head in buf.  It returns the
// head text (without the blank line) and whatever body bytes followed
// it in the same read.
func SplitHead(buf []byte) (head string, rest []byte, ok bool) {
	i := bytes.Index(buf, headTerminator)
	if i < 0 {
		return "", nil, false
	}
	return string(buf[:i]), buf[i+len(headTerminator):], true
}

// ParseRequest parses the request line and headers.  Anything after the
// first empty line is ignored; the body is attached later by the
// connection handler once Content-Length is known.
func ParseRequest(head string) (*Request, error) {
	if strings.TrimSpace(head) == "" {
		return nil, parseErr("empty request")
	}
	if len(head) > MaxHeadSize {
		return nil, parseErr("head is %d bytes, limit %d", len(head), MaxHeadSize)
	}

	lines := strings.Split(head, "\r\n")

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 {
		return nil, parseErr("request line has %d fields, want 3", len(parts))
	}
	method := strings.TrimSpace(parts[0])
	path := strings.TrimSpace(parts[1])
	version := strings.TrimSpace(parts[2])
	if method == "" || path == "" || version == "" {
		return nil, parseErr("empty token in request line %q", lines[0])
	}
	if len(path) > MaxPathLength {
		return nil, parseErr("path is %d bytes, limit %d", len(path), MaxPathLength)
	}

	req := &Request{
		Method:  method,
		Path:    path,
		Version: version,
		Headers: Fields{},
		Cookies: Fields{},
		Form:    Fields{},
	}

	n := 0
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		if n++; n > MaxHeaderLines {
			return nil, parseErr("more than %d header lines", MaxHeaderLines)
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		req.Headers.Set(name, value)

		if strings.EqualFold(name, "Cookie") {
			ParseCookies(req, value)
		}
	}
	return req, nil
}

// ParseCookies adds the name=value pairs of a Cookie header to
// req.Cookies.  Oversized, nameless or valueless entries are dropped.
func ParseCookies(req *Request, header string) {
	if req == nil || header == "" || len(header) > MaxCookieHeader {
		return
	}
	for _, seg := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" || len(name) > MaxCookieName || len(value) > MaxCookieValue {
			continue
		}
		req.Cookies.Set(name, value)
	}
}

// IsForm reports whether the body should be decoded with ParseFormData.
func (r *Request) IsForm() bool {
	return len(r.Body) > 0 && strings.Contains(r.Headers.Get("Content-Type"), formContentType)
}

// ParseFormData decodes an application/x-www-form-urlencoded body into
// req.Form.  Pairs that fail to decode or exceed the size limits are
// dropped; pairs beyond MaxFormPairs are ignored.
func ParseFormData(req *Request) {
	if req == nil || len(req.Body) == 0 || len(req.Body) > MaxBodySize {
		return
	}

	pairs := strings.Split(string(req.Body), "&")
	if len(pairs) > MaxFormPairs {
		pairs = pairs[:MaxFormPairs]
	}
	for _, pair := range pairs {
		rawKey, rawVal, ok := strings.Cut(pair, "=")
		if !ok || rawKey == "" {
			continue
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			continue
		}
		if key == "" || len(key) > MaxFormKeyLength || len(val) > MaxFormValLength {
			continue
		}
		req.Form.Set(key, val)
	}
}

// ContentLength returns the declared body length.  ok is false when the
// header is absent or not a non-negative integer.
func (r *Request) ContentLength() (n int, ok bool) {
	v, present := r.Headers.Lookup("Content-Length")
	if !present {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
