package httpwire

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteResponse_Format(t *testing.T) {
	resp := NewResponse(302)
	resp.SetHeader("Location", "/")
	resp.SetCookie("sessionId", "tok", 1800, true)

	var buf bytes.Buffer
	n, err := WriteResponse(&buf, resp)
	if err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("returned %d, wrote %d bytes", n, buf.Len())
	}

	want := "HTTP/1.1 302 Found\r\n" +
		"Connection: close\r\n" +
		"Content-Length: 0\r\n" +
		"Location: /\r\n" +
		"Set-Cookie: sessionId=tok; Path=/; Max-Age=1800; HttpOnly\r\n" +
		"\r\n"
	if buf.String() != want {
		t.Errorf("wire output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestWriteResponse_OverridesContentLength(t *testing.T) {
	resp := NewResponse(200)
	resp.SetHeader("Content-Length", "999")
	resp.Body = []byte("hello")

	var buf bytes.Buffer
	if _, err := WriteResponse(&buf, resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Content-Length: 5\r\n") {
		t.Errorf("Content-Length not recomputed: %q", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\r\n\r\nhello") {
		t.Errorf("body not appended after head: %q", buf.String())
	}
}

func TestWriteResponse_UnknownStatus(t *testing.T) {
	var buf bytes.Buffer
	if _, err := WriteResponse(&buf, &Response{StatusCode: 299}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "HTTP/1.1 299 Unknown\r\n") {
		t.Errorf("status line = %q", buf.String())
	}
}

func TestWriteResponse_ReusesHeadBuffer(t *testing.T) {
	long := NewResponse(200)
	long.SetHeader("X-Padding", strings.Repeat("p", 10*1024))
	long.SetCookie("sessionId", "first", 1800, true)
	long.Body = []byte("first body")

	short := NewResponse(404)
	short.Body = []byte("nope")
	want := "HTTP/1.1 404 Not Found\r\n" +
		"Connection: close\r\n" +
		"Content-Length: 4\r\n" +
		"\r\n" +
		"nope"

	for i := 0; i < 3; i++ {
		var a bytes.Buffer
		if _, err := WriteResponse(&a, long); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(a.String(), "X-Padding: "+strings.Repeat("p", 10*1024)+"\r\n") {
			t.Fatalf("round %d: oversized header truncated", i)
		}
		if !strings.HasSuffix(a.String(), "\r\n\r\nfirst body") {
			t.Fatalf("round %d: body = %q", i, a.String()[len(a.String())-20:])
		}

		var b bytes.Buffer
		if _, err := WriteResponse(&b, short); err != nil {
			t.Fatal(err)
		}
		if b.String() != want {
			t.Fatalf("round %d: head carried over between writes:\n%q\nwant:\n%q", i, b.String(), want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	resp := NewResponse(200)
	resp.SetHeader("A", "1")
	resp.SetHeader("B", "2")
	resp.SetCookie("x", "y", 0, false)
	resp.Body = []byte("X")

	var buf bytes.Buffer
	if _, err := WriteResponse(&buf, resp); err != nil {
		t.Fatal(err)
	}

	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if got.StatusCode != 200 || got.StatusMessage != "OK" {
		t.Errorf("status = %d %q", got.StatusCode, got.StatusMessage)
	}
	if got.Headers.Get("a") != "1" || got.Headers.Get("b") != "2" {
		t.Errorf("headers = %v", got.Headers)
	}
	if got.Headers.Get("Content-Length") != "1" {
		t.Errorf("Content-Length = %q", got.Headers.Get("Content-Length"))
	}
	if len(got.Cookies) != 1 || got.Cookies[0] != "x=y; Path=/; Max-Age=0" {
		t.Errorf("cookies = %v", got.Cookies)
	}
	if string(got.Body) != "X" {
		t.Errorf("body = %q", got.Body)
	}
}

func TestReadResponse_Malformed(t *testing.T) {
	for _, in := range []string{"", "garbage\r\n\r\n", "HTTP/1.1 abc OK\r\n\r\n"} {
		if _, err := ReadResponse(strings.NewReader(in)); err == nil {
			t.Errorf("ReadResponse(%q) succeeded", in)
		}
	}
}
