package router

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"filegate/internal/auth"
	ferrors "filegate/internal/errors"
	"filegate/internal/httpwire"
	"filegate/internal/metrics"
	"filegate/internal/session"
	"filegate/util"
)

// fixture lays out:
//
//	<tmp>/root/index.html
//	<tmp>/root/style.css
//	<tmp>/root/docs/a.txt
//	<tmp>/root/docs/img/
//	<tmp>/root-evil/secret.txt
//	<tmp>/secret.txt
func newFixture(t *testing.T) (*Router, string) {
	t.Helper()
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")

	mustMkdir(t, filepath.Join(root, "docs", "img"))
	mustMkdir(t, filepath.Join(tmp, "root-evil"))
	mustWrite(t, filepath.Join(root, "index.html"), "<h1>home</h1>")
	mustWrite(t, filepath.Join(root, "style.css"), "body{}")
	mustWrite(t, filepath.Join(root, "docs", "a.txt"), strings.Repeat("x", 5000))
	mustWrite(t, filepath.Join(tmp, "root-evil", "secret.txt"), "evil")
	mustWrite(t, filepath.Join(tmp, "secret.txt"), "secret")

	users, err := auth.NewValidator(auth.DefaultUsers(), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(root, session.NewStore(), users, metrics.New(), util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	return r, root
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func get(path string) *httpwire.Request {
	return &httpwire.Request{
		Method:  "GET",
		Path:    path,
		Version: "HTTP/1.1",
		Headers: httpwire.Fields{},
		Cookies: httpwire.Fields{},
		Form:    httpwire.Fields{},
	}
}

func withSession(req *httpwire.Request, token string) *httpwire.Request {
	req.Cookies.Set(SessionCookie, token)
	return req
}

func login(t *testing.T, r *Router) string {
	t.Helper()
	req := get("/login")
	req.Method = "POST"
	req.Form.Set("username", "admin")
	req.Form.Set("password", "admin123")

	resp := r.Handle(req)
	if resp.StatusCode != 302 {
		t.Fatalf("login status = %d, want 302", resp.StatusCode)
	}
	if len(resp.Cookies) != 1 {
		t.Fatalf("login set %d cookies, want 1", len(resp.Cookies))
	}
	token, _, _ := strings.Cut(strings.TrimPrefix(resp.Cookies[0], SessionCookie+"="), ";")
	return token
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	r, _ := newFixture(t)
	for _, m := range []string{"PUT", "DELETE", "get", "HEAD"} {
		req := get("/")
		req.Method = m
		if resp := r.Handle(req); resp.StatusCode != 405 {
			t.Errorf("%s: status = %d, want 405", m, resp.StatusCode)
		}
	}
	if n := r.metrics.TotalRequests(); n != 0 {
		t.Errorf("rejected methods counted: %d", n)
	}
}

func TestLogin(t *testing.T) {
	r, _ := newFixture(t)

	page := r.Handle(get("/LOGIN"))
	if page.StatusCode != 200 || !strings.Contains(string(page.Body), `action="/login"`) {
		t.Fatalf("GET /login: %d", page.StatusCode)
	}

	req := get("/login")
	req.Method = "POST"
	req.Form.Set("username", "admin")
	req.Form.Set("password", "admin123")
	resp := r.Handle(req)

	if resp.StatusCode != 302 || resp.Headers.Get("Location") != "/" {
		t.Fatalf("status = %d, Location = %q", resp.StatusCode, resp.Headers.Get("Location"))
	}
	c := resp.Cookies[0]
	if !strings.HasPrefix(c, "sessionId=") || !strings.HasSuffix(c, "; Path=/; Max-Age=1800; HttpOnly") {
		t.Errorf("cookie = %q", c)
	}
	if r.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", r.sessions.Len())
	}
}

func TestLogin_Failure(t *testing.T) {
	r, _ := newFixture(t)

	for _, form := range []map[string]string{
		{"username": "admin", "password": "nope"},
		{"username": "admin"},
		{},
	} {
		req := get("/login")
		req.Method = "POST"
		for k, v := range form {
			req.Form.Set(k, v)
		}
		resp := r.Handle(req)
		if resp.StatusCode != 200 {
			t.Errorf("form %v: status = %d, want 200", form, resp.StatusCode)
		}
		if !strings.Contains(string(resp.Body), "Invalid username or password") {
			t.Errorf("form %v: error message missing", form)
		}
		if len(resp.Cookies) != 0 {
			t.Errorf("form %v: cookie set on failed login", form)
		}
	}
	if r.sessions.Len() != 0 {
		t.Error("failed logins created sessions")
	}
}

func TestLogin_FailureIsLogged(t *testing.T) {
	r, _ := newFixture(t)
	var out bytes.Buffer
	r.logger = util.NewLogger(2)
	r.logger.SetOutput(&out)

	req := get("/login")
	req.Method = "POST"
	req.Form.Set("username", "admin")
	req.Form.Set("password", "wrong")
	r.Handle(req)

	line := out.String()
	if !strings.Contains(line, ferrors.ErrAuthFailed.Error()) || !strings.Contains(line, "admin") {
		t.Errorf("failed login not logged: %q", line)
	}
	if strings.Contains(line, "wrong") {
		t.Errorf("password leaked into log: %q", line)
	}
}

func TestLogout(t *testing.T) {
	r, _ := newFixture(t)
	token := login(t, r)

	resp := r.Handle(withSession(get("/logout"), token))
	if resp.StatusCode != 302 || resp.Headers.Get("Location") != "/login" {
		t.Fatalf("status = %d, Location = %q", resp.StatusCode, resp.Headers.Get("Location"))
	}
	if len(resp.Cookies) != 1 || !strings.Contains(resp.Cookies[0], "sessionId=; Path=/; Max-Age=0") {
		t.Errorf("cookie not cleared: %v", resp.Cookies)
	}

	if resp := r.Handle(withSession(get("/"), token)); resp.StatusCode != 302 {
		t.Errorf("session still valid after logout: %d", resp.StatusCode)
	}

	if resp := r.Handle(get("/logout")); resp.StatusCode != 302 {
		t.Errorf("logout without cookie: %d", resp.StatusCode)
	}
}

func TestSessionGate(t *testing.T) {
	r, _ := newFixture(t)

	tests := []struct {
		path string
		want int
	}{
		{"/", 302},
		{"/index.html", 302},
		{"/docs/", 302},
		{"/style.css", 200},
		{"/missing.png", 404},
		{"/login.html", 404},
	}
	for _, tt := range tests {
		resp := r.Handle(get(tt.path))
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s without session = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
		if tt.want == 302 && resp.Headers.Get("Location") != "/login" {
			t.Errorf("GET %s redirected to %q", tt.path, resp.Headers.Get("Location"))
		}
	}

	if resp := r.Handle(withSession(get("/"), "forged")); resp.StatusCode != 302 {
		t.Errorf("forged token accepted: %d", resp.StatusCode)
	}
}

func TestStaticFiles(t *testing.T) {
	r, _ := newFixture(t)
	token := login(t, r)

	resp := r.Handle(withSession(get("/"), token))
	if resp.StatusCode != 200 || string(resp.Body) != "<h1>home</h1>" {
		t.Fatalf("GET / = %d %q", resp.StatusCode, resp.Body)
	}
	if ct := resp.Headers.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	resp = r.Handle(withSession(get("/docs/a.txt?download=1"), token))
	if resp.StatusCode != 200 || len(resp.Body) != 5000 {
		t.Errorf("GET /docs/a.txt = %d, %d bytes", resp.StatusCode, len(resp.Body))
	}

	if resp := r.Handle(withSession(get("/nope.html"), token)); resp.StatusCode != 404 {
		t.Errorf("missing file = %d, want 404", resp.StatusCode)
	}
}

func TestSandbox(t *testing.T) {
	r, _ := newFixture(t)
	token := login(t, r)

	for _, p := range []string{
		"/../secret.txt",
		"/docs/../../secret.txt",
		"/%2e%2e/secret.txt",
		"/../root-evil/secret.txt",
	} {
		resp := r.Handle(withSession(get(p), token))
		if resp.StatusCode != 403 {
			t.Errorf("GET %s = %d, want 403", p, resp.StatusCode)
		}
		if strings.Contains(string(resp.Body), "secret") || strings.Contains(string(resp.Body), "evil") {
			t.Errorf("GET %s leaked file content", p)
		}
	}

	if resp := r.Handle(withSession(get("/docs/../index.html"), token)); resp.StatusCode != 200 {
		t.Errorf("in-root dot-dot = %d, want 200", resp.StatusCode)
	}
	if resp := r.Handle(withSession(get("/%zz"), token)); resp.StatusCode != 400 {
		t.Errorf("bad escape = %d, want 400", resp.StatusCode)
	}
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/srv/root")
	tests := []struct {
		path string
		fold bool
		want bool
	}{
		{"/srv/root", false, true},
		{"/srv/root/a/b", false, true},
		{"/srv/root-evil", false, false},
		{"/srv/rootx/a", false, false},
		{"/srv", false, false},
		{"/srv/ROOT/a", false, false},
		{"/SRV/Root", false, false},
		{"/SRV/Root/a", true, true},
		{"/srv/ROOT", true, true},
		{"/srv/ROOT-evil/a", true, false},
	}
	saved := foldCase
	t.Cleanup(func() { foldCase = saved })
	for _, tt := range tests {
		foldCase = tt.fold
		if got := within(root, filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("within(%q, %q) fold=%v = %v, want %v", root, tt.path, tt.fold, got, tt.want)
		}
	}
}

// TestSandbox_CaseSibling covers a directory next to the root whose
// name differs only by case.  On case-sensitive filesystems it is a
// different directory and must stay unreachable, with or without a
// session.
func TestSandbox_CaseSibling(t *testing.T) {
	if foldCase {
		t.Skip("filesystem folds case; the sibling would be the root itself")
	}
	r, root := newFixture(t)
	sibling := filepath.Join(filepath.Dir(root), "ROOT")
	mustMkdir(t, sibling)
	mustWrite(t, filepath.Join(sibling, "secret.css"), "TOP-SECRET")
	mustWrite(t, filepath.Join(sibling, "passwd"), "root:x:0:0")

	token := login(t, r)
	for _, req := range []*httpwire.Request{
		get("/../ROOT/secret.css"),
		withSession(get("/../ROOT/secret.css"), token),
		withSession(get("/../ROOT/"), token),
	} {
		resp := r.Handle(req)
		if resp.StatusCode != 403 {
			t.Errorf("GET %s = %d, want 403", req.Path, resp.StatusCode)
		}
		if strings.Contains(string(resp.Body), "TOP-SECRET") || strings.Contains(string(resp.Body), "passwd") {
			t.Errorf("GET %s leaked the sibling directory", req.Path)
		}
	}

	resp := r.Handle(get("/api/files/../ROOT"))
	if resp.StatusCode != 404 {
		t.Errorf("GET /api/files/../ROOT = %d, want 404", resp.StatusCode)
	}
	if strings.Contains(string(resp.Body), "passwd") {
		t.Error("API listed the sibling directory")
	}
}

func TestDirectoryListing(t *testing.T) {
	r, _ := newFixture(t)
	token := login(t, r)

	resp := r.Handle(withSession(get("/docs"), token))
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := string(resp.Body)
	for _, want := range []string{`href="/docs/img"`, `href="/docs/a.txt"`, "4.88 KB", `<a href="/">..</a>`} {
		if !strings.Contains(body, want) {
			t.Errorf("listing missing %q", want)
		}
	}
	if strings.Index(body, "img/") > strings.Index(body, "a.txt") {
		t.Error("directories should be listed before files")
	}
}

func TestFileTooLarge(t *testing.T) {
	r, root := newFixture(t)
	token := login(t, r)

	big := filepath.Join(root, "big.bin")
	f, err := os.Create(big)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(MaxFileSize + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	resp := r.Handle(withSession(get("/big.bin"), token))
	if resp.StatusCode != 413 || resp.StatusMessage != "File Too Large" {
		t.Errorf("status = %d %s, want 413 File Too Large", resp.StatusCode, resp.StatusMessage)
	}
}

func TestAPIStats(t *testing.T) {
	r, root := newFixture(t)

	r.Handle(get("/login"))
	r.Handle(get("/"))
	resp := r.Handle(get("/api/STATS"))
	if resp.StatusCode != 200 || resp.Headers.Get("Content-Type") != "application/json" {
		t.Fatalf("status = %d, type = %q", resp.StatusCode, resp.Headers.Get("Content-Type"))
	}

	var got statsBody
	if err := json.Unmarshal(resp.Body, &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, resp.Body)
	}
	if got.TotalRequests != 3 {
		t.Errorf("total_requests = %d, want 3", got.TotalRequests)
	}
	if got.RootDirectory != root {
		t.Errorf("root_directory = %q, want %q", got.RootDirectory, root)
	}
	if _, err := time.ParseInLocation("2006-01-02 15:04:05", got.StartTime, time.Local); err != nil {
		t.Errorf("start_time %q: %v", got.StartTime, err)
	}
	if !strings.HasSuffix(got.UptimeFormatted, "s") || !strings.HasPrefix(got.UptimeFormatted, "0d 0h 0m") {
		t.Errorf("uptime_formatted = %q", got.UptimeFormatted)
	}
}

func TestAPIFiles(t *testing.T) {
	r, _ := newFixture(t)

	resp := r.Handle(get("/api/files/docs"))
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got struct {
		Path  string                   `json:"path"`
		Items []map[string]interface{} `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Path != "/docs" || len(got.Items) != 2 {
		t.Fatalf("path = %q, %d items", got.Path, len(got.Items))
	}

	dir, file := got.Items[0], got.Items[1]
	if dir["type"] != "directory" || dir["path"] != "/docs/img" {
		t.Errorf("first item = %v", dir)
	}
	if _, ok := dir["size"]; ok {
		t.Error("directories carry no size")
	}
	if file["type"] != "file" || file["size"] != float64(5000) || file["size_formatted"] != "4.88 KB" || file["extension"] != ".txt" {
		t.Errorf("second item = %v", file)
	}

	root := r.Handle(get("/api/files"))
	if root.StatusCode != 200 || !strings.Contains(string(root.Body), `"path":"/"`) {
		t.Errorf("GET /api/files = %d %s", root.StatusCode, root.Body)
	}
}

func TestAPINotFound(t *testing.T) {
	r, _ := newFixture(t)
	tests := []struct {
		path string
		msg  string
	}{
		{"/api/files/../..", "Directory Not Found"},
		{"/api/files/index.html", "Directory Not Found"},
		{"/api/files/nope", "Directory Not Found"},
		{"/api/filesystem", "API Endpoint Not Found"},
		{"/api/", "API Endpoint Not Found"},
	}
	for _, tt := range tests {
		resp := r.Handle(get(tt.path))
		if resp.StatusCode != 404 || resp.StatusMessage != tt.msg {
			t.Errorf("GET %s = %d %q, want 404 %q", tt.path, resp.StatusCode, resp.StatusMessage, tt.msg)
		}
	}
}

func TestHandle_RecoversPanic(t *testing.T) {
	r, _ := newFixture(t)
	r.sessions = nil

	resp := r.Handle(withSession(get("/index.html"), "abc"))
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if r.metrics.ErrorCount() != 1 {
		t.Errorf("errors = %d, want 1", r.metrics.ErrorCount())
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{5000, "4.88 KB"},
		{1024 * 1024, "1 MB"},
		{5 * 1024 * 1024 * 1024, "5 GB"},
		{3 << 40, "3 TB"},
		{2048 << 40, "2048 TB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0d 0h 0m 0s"},
		{59 * time.Second, "0d 0h 0m 59s"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
		{-time.Second, "0d 0h 0m 0s"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.in); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
