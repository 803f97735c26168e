package httpwire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadResponse parses a response produced by WriteResponse.  It is the
// client-side counterpart used by the probe command and tests.
func ReadResponse(r io.Reader) (*Response, error) {
	br := bufio.NewReader(r)

	status, err := readLine(br)
	if err != nil {
		return nil, fmt.Errorf("status line: %w", err)
	}
	parts := strings.SplitN(status, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, fmt.Errorf("malformed status line %q", status)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("malformed status code %q", parts[1])
	}

	resp := &Response{StatusCode: code, Headers: Fields{}}
	if len(parts) == 3 {
		resp.StatusMessage = parts[2]
	}

	for {
		line, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("headers: %w", err)
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if strings.EqualFold(name, "Set-Cookie") {
			resp.Cookies = append(resp.Cookies, value)
			continue
		}
		resp.Headers.Set(name, value)
	}

	if v, ok := resp.Headers.Lookup("Content-Length"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad Content-Length %q", v)
		}
		resp.Body = make([]byte, n)
		if _, err := io.ReadFull(br, resp.Body); err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		return resp, nil
	}

	resp.Body, err = io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	return resp, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
