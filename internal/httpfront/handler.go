// Package httpfront exposes a backend read-only over plain HTTP:
// directory browsing (HTML or JSON) and file downloads with Range
// support.
package httpfront

import (
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/internal/frontend"
	"github.com/zhangzqs/govfs/pkg/log"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

// Handler serves GET browsing over fs. Every other method is 404, the
// front-end is strictly read-only.
type Handler struct {
	fs     vfs.FileSystem
	logger *slog.Logger
}

func NewHandler(fs vfs.FileSystem, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{fs: fs, logger: logger}
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><title>Index of {{ .Path }}</title></head>
<body>
<h1>Index of {{ .Path }}</h1>
<ul>
{{- if not .IsRoot }}
<li><a href="../">../</a></li>
{{- end }}
{{- range .Entries }}
<li><a href="{{ .Href }}">{{ .Name }}</a>{{ if not .IsDirectory }} ({{ .HumanSize }}){{ end }}</li>
{{- end }}
</ul>
</body>
</html>
`))

type listingEntry struct {
	Name        string
	Href        string
	IsDirectory bool
	HumanSize   string
}

type listingData struct {
	Path    string
	IsRoot  bool
	Entries []listingEntry
}

type jsonEntry struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	IsDirectory bool    `json:"isDirectory"`
	Size        *int64  `json:"size,omitempty"`
	MimeType    *string `json:"mimeType,omitempty"`
}

type jsonListing struct {
	Path  string      `json:"path"`
	Files []jsonEntry `json:"files"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	ctx := frontend.RequestContext(r)

	p, err := vfs.ParsePath(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	st, err := h.fs.Stat(ctx, p)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if st == nil {
		http.NotFound(w, r)
		return
	}

	if st.IsDirectory {
		h.serveDirectory(ctx, w, r, p)
		return
	}
	h.serveFile(ctx, w, r, p, st)
}

func (h *Handler) writeError(ctx *vfs.Context, w http.ResponseWriter, err error) {
	if !vfs.Is(err, vfs.CodeCancelled) {
		h.logger.ErrorContext(ctx, "request failed", log.Error(err))
	}
	frontend.WriteError(w, err)
}

func (h *Handler) serveDirectory(ctx *vfs.Context, w http.ResponseWriter, r *http.Request, p vfs.Path) {
	recursive := r.URL.Query().Get("recursive") == "true"

	var entries []vfs.FileStatus
	for st, err := range h.fs.List(ctx, p, vfs.ListOptions{Recursive: recursive}) {
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		entries = append(entries, st)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return entries[i].Path.String() < entries[j].Path.String()
	})

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		h.serveJSONListing(w, p, entries)
		return
	}
	h.serveHTMLListing(ctx, w, p, entries)
}

func (h *Handler) serveJSONListing(w http.ResponseWriter, p vfs.Path, entries []vfs.FileStatus) {
	listing := jsonListing{Path: p.String(), Files: make([]jsonEntry, 0, len(entries))}
	for _, st := range entries {
		listing.Files = append(listing.Files, jsonEntry{
			Name:        st.Path.Filename(),
			Path:        st.Path.String(),
			IsDirectory: st.IsDirectory,
			Size:        st.Size,
			MimeType:    st.MimeType,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listing)
}

func (h *Handler) serveHTMLListing(ctx *vfs.Context, w http.ResponseWriter, p vfs.Path, entries []vfs.FileStatus) {
	data := listingData{Path: p.String(), IsRoot: p.IsRoot()}
	for _, st := range entries {
		entry := listingEntry{
			Name:        st.Path.Filename(),
			IsDirectory: st.IsDirectory,
		}

		href := url.PathEscape(st.Path.Filename())
		if st.IsDirectory {
			entry.Name += "/"
			href += "/"
		}
		entry.Href = href

		if st.Size != nil {
			entry.HumanSize = humanize.IBytes(uint64(*st.Size))
		}
		data.Entries = append(data.Entries, entry)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listingTemplate.Execute(w, data); err != nil {
		h.logger.ErrorContext(ctx, "could not render listing", log.Error(errors.WithStack(err)))
	}
}

func (h *Handler) serveFile(ctx *vfs.Context, w http.ResponseWriter, r *http.Request, p vfs.Path, st *vfs.FileStatus) {
	total := int64(0)
	if st.Size != nil {
		total = *st.Size
	}

	byteRange, ranged, err := frontend.ParseRange(r.Header.Get("Range"), total)
	if err != nil {
		w.Header().Set("Content-Range", frontend.UnsatisfiableRange(total))
		http.Error(w, http.StatusText(http.StatusRequestedRangeNotSatisfiable), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if st.MimeType != nil {
		w.Header().Set("Content-Type", *st.MimeType)
	}
	w.Header().Set("Accept-Ranges", "bytes")

	opts := vfs.ReadOptions{}
	if ranged {
		opts.Start = &byteRange.Start
		opts.End = &byteRange.End
	}

	reader, err := h.fs.OpenRead(ctx, p, opts)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	defer reader.Close()

	if ranged {
		w.Header().Set("Content-Range", byteRange.ContentRange(total))
		w.WriteHeader(http.StatusPartialContent)
	}

	if _, err := io.Copy(w, reader); err != nil && !vfs.Is(err, vfs.CodeCancelled) {
		h.logger.WarnContext(ctx, "download aborted", slog.String("path", p.String()), log.Error(err))
	}
}
