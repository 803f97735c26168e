// Package pages renders the server's HTML: the login form, directory
// listings and error pages.  All output goes through html/template so
// file names and messages are escaped.
package pages

import (
	"bytes"
	"html/template"
	"strings"
)

// TimeLayout is how modification times are shown in listings.
const TimeLayout = "2006-01-02 15:04:05"

// Entry is one row of a directory listing.
type Entry struct {
	Name     string
	Href     string
	IsDir    bool
	Size     string // "-" for directories
	Modified string
}

// Crumb is one breadcrumb link.
type Crumb struct {
	Name string
	Href string
}

// Listing is the data behind a directory page.
type Listing struct {
	Path    string // request path, "/"-separated
	Parent  string // empty at the root
	Crumbs  []Crumb
	Entries []Entry
}

// NewListing fills in breadcrumbs and the parent link for urlPath.
// Entries are left to the caller.
func NewListing(urlPath string) *Listing {
	clean := "/" + strings.Trim(urlPath, "/")
	l := &Listing{Path: clean}

	href := ""
	for _, part := range strings.Split(strings.Trim(clean, "/"), "/") {
		if part == "" {
			continue
		}
		href += "/" + part
		l.Crumbs = append(l.Crumbs, Crumb{Name: part, Href: href})
	}
	if clean != "/" {
		l.Parent = clean[:strings.LastIndex(clean, "/")]
		if l.Parent == "" {
			l.Parent = "/"
		}
	}
	return l
}

var (
	loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Login</title>
<style>
body{font-family:sans-serif;background:#f0f2f5;display:flex;justify-content:center;align-items:center;height:100vh;margin:0}
.box{background:#fff;padding:40px;border-radius:10px;box-shadow:0 4px 20px rgba(0,0,0,.1);width:320px}
label{display:block;margin-top:12px;color:#555}
input{width:100%;padding:10px;margin-top:6px;box-sizing:border-box;border:1px solid #ddd;border-radius:6px}
button{width:100%;margin-top:20px;padding:12px;background:#4CAF50;color:#fff;border:0;border-radius:6px;cursor:pointer}
.error{color:#e74c3c;background:#fdf2f2;padding:12px;border-radius:6px;margin-bottom:20px;border-left:4px solid #e74c3c}
.info{margin-top:20px;font-size:12px;color:#888}
</style>
</head>
<body>
<div class="box">
<h1>Login</h1>
{{if .}}<div class="error">{{.}}</div>
{{end}}<form method="POST" action="/login">
<label for="username">Username</label>
<input type="text" id="username" name="username" required autofocus>
<label for="password">Password</label>
<input type="password" id="password" name="password" required>
<button type="submit">Sign in</button>
</form>
<div class="info">Default users: admin/admin123, user/password123, test/test123</div>
</div>
</body>
</html>
`))

	dirTmpl = template.Must(template.New("dir").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Index of {{.Path}}</title>
<style>
body{font-family:sans-serif;margin:40px;background:#fafafa}
.breadcrumb{margin:20px 0;color:#666}
.breadcrumb a{color:#4CAF50;text-decoration:none}
table{border-collapse:collapse;width:100%;background:#fff}
th,td{text-align:left;padding:8px 12px;border-bottom:1px solid #eee}
a{color:#333}
.logout{float:right}
</style>
</head>
<body>
<a class="logout" href="/logout">Logout</a>
<h1>Directory Listing</h1>
<div class="breadcrumb"><a href="/">Home</a>{{range .Crumbs}} / <a href="{{.Href}}">{{.Name}}</a>{{end}}</div>
<table>
<thead><tr><th>Name</th><th>Size</th><th>Modified</th></tr></thead>
<tbody>
{{if .Parent}}<tr><td><a href="{{.Parent}}">..</a></td><td>-</td><td>-</td></tr>
{{end}}{{range .Entries}}<tr><td><a href="{{.Href}}">{{.Name}}{{if .IsDir}}/{{end}}</a></td><td>{{.Size}}</td><td>{{.Modified}}</td></tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

	errorTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Code}} - {{.Message}}</title>
<style>
body{font-family:sans-serif;background:#f0f2f5;display:flex;justify-content:center;align-items:center;height:100vh;margin:0}
.error-container{text-align:center;background:#fff;padding:40px 60px;border-radius:10px;box-shadow:0 4px 20px rgba(0,0,0,.1)}
.error-code{font-size:72px;margin:0;color:#e74c3c}
.error-message{font-size:20px;color:#555}
a{color:#4CAF50;text-decoration:none}
</style>
</head>
<body>
<div class="error-container">
<h1 class="error-code">{{.Code}}</h1>
<p class="error-message">{{.Message}}</p>
<a href="/">&larr; Go Home</a>
</div>
</body>
</html>
`))
)

// Login renders the login form, with errMsg shown above it when set.
func Login(errMsg string) []byte {
	return render(loginTmpl, errMsg)
}

// Directory renders a listing page.
func Directory(l *Listing) []byte {
	return render(dirTmpl, l)
}

// Error renders an error page for code with a human-readable message.
func Error(code int, message string) []byte {
	return render(errorTmpl, struct {
		Code    int
		Message string
	}{code, message})
}

// render executes t.  The templates are fixed and their inputs are
// plain values, so execution cannot fail short of a programming error.
func render(t *template.Template, data interface{}) []byte {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		panic("pages: " + t.Name() + ": " + err.Error())
	}
	return buf.Bytes()
}
