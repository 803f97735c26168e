package httpwire

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"filegate/util"
)

var statusText = map[int]string{
	200: "OK",
	302: "Found",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	500: "Internal Server Error",
}

// StatusText returns the standard reason phrase for code, or "Unknown".
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Unknown"
}

// Response is a structured HTTP response.  Cookies holds raw Set-Cookie
// directives in insertion order, since one response may set several.
type Response struct {
	StatusCode    int
	StatusMessage string
	Headers       Fields
	Cookies       []string
	Body          []byte
}

// NewResponse returns an empty response with the standard reason phrase.
func NewResponse(code int) *Response {
	return &Response{
		StatusCode:    code,
		StatusMessage: StatusText(code),
		Headers:       Fields{},
	}
}

// SetHeader stores a header; the last write for a name wins.
func (r *Response) SetHeader(name, value string) { r.Headers.Set(name, value) }

// SetCookie appends a Set-Cookie directive of the form
// "name=value; Path=/; Max-Age=<seconds>[; HttpOnly]".
func (r *Response) SetCookie(name, value string, maxAge int, httpOnly bool) {
	c := fmt.Sprintf("%s=%s; Path=/; Max-Age=%d", name, value, maxAge)
	if httpOnly {
		c += "; HttpOnly"
	}
	r.Cookies = append(r.Cookies, c)
}

// WriteResponse serializes resp to w.  Content-Length always reflects
// the body and every response announces Connection: close.  Headers are
// written in sorted order so output is deterministic.  The head is
// assembled in a pooled buffer and sent together with the body.
func WriteResponse(w io.Writer, resp *Response) (int64, error) {
	if resp.Headers == nil {
		resp.Headers = Fields{}
	}
	resp.Headers.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	resp.Headers.Set("Connection", "close")

	msg := resp.StatusMessage
	if msg == "" {
		msg = StatusText(resp.StatusCode)
	}

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)

	head := append((*bufp)[:0], "HTTP/1.1 "...)
	head = strconv.AppendInt(head, int64(resp.StatusCode), 10)
	head = append(head, ' ')
	head = append(head, msg...)
	head = append(head, "\r\n"...)
	for _, k := range resp.Headers.Keys() {
		if k == "set-cookie" {
			continue
		}
		head = appendField(head, canonicalKey(k), resp.Headers[k])
	}
	for _, c := range resp.Cookies {
		head = appendField(head, "Set-Cookie", c)
	}
	head = append(head, "\r\n"...)

	bufs := net.Buffers{head}
	if len(resp.Body) > 0 {
		bufs = append(bufs, resp.Body)
	}
	return bufs.WriteTo(w)
}

func appendField(b []byte, name, value string) []byte {
	b = append(b, name...)
	b = append(b, ": "...)
	b = append(b, value...)
	return append(b, "\r\n"...)
}
