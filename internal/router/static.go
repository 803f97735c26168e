package router

import (
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	ferrors "filegate/internal/errors"
	"filegate/internal/httpwire"
	"filegate/internal/mimetype"
	"filegate/internal/pages"
)

// MaxFileSize is the largest file served in one response.
const MaxFileSize = 100 * 1024 * 1024

var errOutsideRoot = ferrors.New("path escapes the served root")

// foldCase is set where the default filesystems ignore case.  Elsewhere
// "/srv/WWW" is a different directory from "/srv/www".
var foldCase = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// resolve maps a "/"-separated request path onto the filesystem and
// checks that the result stays inside the root on a separator boundary.
func (r *Router) resolve(p string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(p, "/"))
	full, err := filepath.Abs(filepath.Join(r.root, rel))
	if err != nil {
		return "", err
	}
	full = filepath.Clean(full)
	if !within(r.root, full) {
		return "", errOutsideRoot
	}
	return full, nil
}

func within(root, full string) bool {
	if foldCase {
		root, full = strings.ToLower(root), strings.ToLower(full)
	}
	if full == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(full, prefix)
}

func (r *Router) serveStatic(p string) (*httpwire.Response, error) {
	full, err := r.resolve(p)
	if err != nil {
		return nil, ferrors.Status(403, "Forbidden", err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, statError(err)
	}
	if info.IsDir() {
		return r.listDirectory(full, p)
	}
	if !info.Mode().IsRegular() {
		return nil, ferrors.Status(404, "Not Found", nil)
	}
	return r.serveFile(full, info)
}

func (r *Router) serveFile(full string, info fs.FileInfo) (*httpwire.Response, error) {
	if info.Size() > MaxFileSize {
		return nil, ferrors.Status(413, "File Too Large", nil)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, statError(err)
	}

	resp := httpwire.NewResponse(200)
	resp.SetHeader("Content-Type", mimetype.ContentType(full))
	resp.Body = data
	return resp, nil
}

func (r *Router) listDirectory(full, urlPath string) (*httpwire.Response, error) {
	dirs, files, err := readDir(full)
	if err != nil {
		return nil, statError(err)
	}

	l := pages.NewListing(urlPath)
	for _, d := range dirs {
		l.Entries = append(l.Entries, pages.Entry{
			Name:     d.Name(),
			Href:     escapePath(path.Join(l.Path, d.Name())),
			IsDir:    true,
			Size:     "-",
			Modified: d.ModTime().Format(pages.TimeLayout),
		})
	}
	for _, f := range files {
		l.Entries = append(l.Entries, pages.Entry{
			Name:     f.Name(),
			Href:     escapePath(path.Join(l.Path, f.Name())),
			Size:     FormatSize(f.Size()),
			Modified: f.ModTime().Format(pages.TimeLayout),
		})
	}
	return htmlResponse(200, pages.Directory(l)), nil
}

// readDir returns the subdirectories and the other entries of dir,
// each sorted by name.  Entries that vanish mid-listing are skipped.
func readDir(dir string) (dirs, files []fs.FileInfo, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.IsDir() {
			dirs = append(dirs, info)
		} else {
			files = append(files, info)
		}
	}
	byName := func(s []fs.FileInfo) func(i, j int) bool {
		return func(i, j int) bool { return s[i].Name() < s[j].Name() }
	}
	sort.Slice(dirs, byName(dirs))
	sort.Slice(files, byName(files))
	return dirs, files, nil
}

// statError maps a filesystem error to a response status.
func statError(err error) error {
	switch {
	case ferrors.Is(err, fs.ErrNotExist):
		return ferrors.Status(404, "Not Found", err)
	case ferrors.Is(err, fs.ErrPermission):
		return ferrors.Status(403, "Forbidden", err)
	}
	return err
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}
