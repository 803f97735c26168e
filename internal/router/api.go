package router

import (
	"encoding/json"
	"path"
	"path/filepath"
	"strings"
	"time"

	ferrors "filegate/internal/errors"
	"filegate/internal/httpwire"
	"filegate/internal/pages"
)

type statsBody struct {
	UptimeSeconds   int64  `json:"uptime_seconds"`
	UptimeFormatted string `json:"uptime_formatted"`
	TotalRequests   int64  `json:"total_requests"`
	StartTime       string `json:"start_time"`
	RootDirectory   string `json:"root_directory"`
}

type filesBody struct {
	Path  string     `json:"path"`
	Items []fileItem `json:"items"`
}

type fileItem struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Size          *int64  `json:"size,omitempty"`
	SizeFormatted string  `json:"size_formatted,omitempty"`
	Path          string  `json:"path"`
	Modified      string  `json:"modified"`
	Extension     *string `json:"extension,omitempty"`
}

func (r *Router) handleAPI(p string) (*httpwire.Response, error) {
	const filesPrefix = "/api/files"

	switch {
	case strings.EqualFold(p, "/api/stats"):
		return r.handleStats()
	case strings.EqualFold(p, filesPrefix) || hasPrefixFold(p, filesPrefix+"/"):
		return r.handleFiles(p[len(filesPrefix):])
	}
	return nil, ferrors.Status(404, "API Endpoint Not Found", nil)
}

func (r *Router) handleStats() (*httpwire.Response, error) {
	snap := r.metrics.Snapshot()
	start := snap.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	return writeJSON(statsBody{
		UptimeSeconds:   int64(snap.UptimeDuration / time.Second),
		UptimeFormatted: FormatUptime(snap.UptimeDuration),
		TotalRequests:   snap.RequestsTotal,
		StartTime:       start.Format(pages.TimeLayout),
		RootDirectory:   r.root,
	})
}

func (r *Router) handleFiles(sub string) (*httpwire.Response, error) {
	if sub == "" {
		sub = "/"
	}
	notFound := ferrors.Status(404, "Directory Not Found", nil)

	full, err := r.resolve(sub)
	if err != nil {
		return nil, notFound
	}
	dirs, files, err := readDir(full)
	if err != nil {
		return nil, notFound
	}

	body := filesBody{Path: sub, Items: make([]fileItem, 0, len(dirs)+len(files))}
	for _, d := range dirs {
		body.Items = append(body.Items, fileItem{
			Name:     d.Name(),
			Type:     "directory",
			Path:     path.Join(sub, d.Name()),
			Modified: d.ModTime().Format(pages.TimeLayout),
		})
	}
	for _, f := range files {
		size := f.Size()
		ext := filepath.Ext(f.Name())
		body.Items = append(body.Items, fileItem{
			Name:          f.Name(),
			Type:          "file",
			Size:          &size,
			SizeFormatted: FormatSize(size),
			Path:          path.Join(sub, f.Name()),
			Modified:      f.ModTime().Format(pages.TimeLayout),
			Extension:     &ext,
		})
	}
	return writeJSON(body)
}

// writeJSON is the single JSON producer for the API.
func writeJSON(v interface{}) (*httpwire.Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	resp := httpwire.NewResponse(200)
	resp.SetHeader("Content-Type", "application/json")
	resp.Body = data
	return resp, nil
}
