// Package webdavfront exposes a backend as a WebDAV class 1/2 server:
// full method dispatch, multistatus PROPFIND, Range-aware GET,
// streaming PUT, and Basic/Digest authentication.
package webdavfront

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/zhangzqs/govfs/internal/frontend"
	"github.com/zhangzqs/govfs/pkg/log"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

var allowedMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodOptions,
	http.MethodPut, http.MethodDelete,
	"MKCOL", "PROPFIND", "PROPPATCH", "COPY", "MOVE",
}

// Handler dispatches WebDAV methods onto fs.
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

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := frontend.RequestContext(r)

	p, err := vfs.ParsePath(r.URL.Path)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodOptions:
		h.handleOptions(w)
	case http.MethodGet:
		h.handleGet(ctx, w, r, p, false)
	case http.MethodHead:
		h.handleGet(ctx, w, r, p, true)
	case http.MethodPut:
		h.handlePut(ctx, w, r, p)
	case http.MethodDelete:
		h.handleDelete(ctx, w, p)
	case "MKCOL":
		h.handleMkcol(ctx, w, p)
	case "PROPFIND":
		h.handlePropfind(ctx, w, r, p)
	case "PROPPATCH":
		h.handleProppatch(ctx, w, r, p)
	case "COPY":
		h.handleCopyMove(ctx, w, r, p, false)
	case "MOVE":
		h.handleCopyMove(ctx, w, r, p, true)
	default:
		w.Header().Set("Allow", strings.Join(allowedMethods, ", "))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

func (h *Handler) writeError(ctx *vfs.Context, w http.ResponseWriter, err error) {
	if !vfs.Is(err, vfs.CodeCancelled) && !vfs.Is(err, vfs.CodeNotFound) {
		h.logger.ErrorContext(ctx, "webdav request failed", log.Error(err))
	}
	frontend.WriteError(w, err)
}

func (h *Handler) handleOptions(w http.ResponseWriter) {
	w.Header().Set("Allow", strings.Join(allowedMethods, ", "))
	w.Header().Set("DAV", "1, 2")
	w.WriteHeader(http.StatusOK)
}

var davListingTemplate = template.Must(template.New("davlisting").Parse(`<!DOCTYPE html>
<html>
<head><title>{{ .Path }}</title></head>
<body>
<h1>{{ .Path }}</h1>
<ul>
{{- range .Names }}
<li><a href="{{ . }}">{{ . }}</a></li>
{{- end }}
</ul>
</body>
</html>
`))

func (h *Handler) handleGet(ctx *vfs.Context, w http.ResponseWriter, r *http.Request, p vfs.Path, headOnly bool) {
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
		h.serveListing(ctx, w, p, headOnly)
		return
	}

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

	if headOnly {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", total))
		w.WriteHeader(http.StatusOK)
		return
	}

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

func (h *Handler) serveListing(ctx *vfs.Context, w http.ResponseWriter, p vfs.Path, headOnly bool) {
	var names []string
	for st, err := range h.fs.List(ctx, p, vfs.ListOptions{}) {
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		name := st.Path.Filename()
		if st.IsDirectory {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if headOnly {
		w.WriteHeader(http.StatusOK)
		return
	}

	data := struct {
		Path  string
		Names []string
	}{Path: p.String(), Names: names}

	if err := davListingTemplate.Execute(w, data); err != nil {
		h.logger.ErrorContext(ctx, "could not render listing", log.Error(err))
	}
}

func (h *Handler) handlePut(ctx *vfs.Context, w http.ResponseWriter, r *http.Request, p vfs.Path) {
	defer r.Body.Close()

	sink, err := h.fs.OpenWrite(ctx, p, vfs.WriteOptions{Mode: vfs.WriteModeOverwrite})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if _, err := io.Copy(sink, r.Body); err != nil {
		sink.Close()
		h.writeError(ctx, w, vfs.WrapError(vfs.CodeIOError, &p, err))
		return
	}
	if err := sink.Close(); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleDelete(ctx *vfs.Context, w http.ResponseWriter, p vfs.Path) {
	if err := h.fs.Delete(ctx, p, vfs.DeleteOptions{Recursive: true}); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMkcol(ctx *vfs.Context, w http.ResponseWriter, p vfs.Path) {
	if err := h.fs.CreateDirectory(ctx, p, vfs.CreateDirectoryOptions{CreateParents: true}); err != nil {
		if vfs.Is(err, vfs.CodeAlreadyExists) {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handlePropfind(ctx *vfs.Context, w http.ResponseWriter, r *http.Request, p vfs.Path) {
	st, err := h.fs.Stat(ctx, p)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if st == nil {
		http.NotFound(w, r)
		return
	}

	now := time.Now()
	responses := []davResponse{responseOf("", *st, now)}

	if r.Header.Get("Depth") != "0" && st.IsDirectory {
		for child, err := range h.fs.List(ctx, p, vfs.ListOptions{}) {
			if err != nil {
				h.writeError(ctx, w, err)
				return
			}
			responses = append(responses, responseOf("", child, now))
		}
	}

	body, err := renderMultistatus(responses)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(body)
}

func (h *Handler) handleProppatch(ctx *vfs.Context, w http.ResponseWriter, r *http.Request, p vfs.Path) {
	st, err := h.fs.Stat(ctx, p)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if st == nil {
		http.NotFound(w, r)
		return
	}

	// Properties are derived from the backend and immutable here.
	body, err := proppatchForbidden(hrefOf("", *st))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(body)
}

// destinationPath resolves the Destination header of a COPY/MOVE into a
// path on this server.
func destinationPath(r *http.Request) (vfs.Path, error) {
	raw := r.Header.Get("Destination")
	if raw == "" {
		return vfs.Path{}, fmt.Errorf("missing Destination header")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return vfs.Path{}, err
	}

	unescaped, err := url.PathUnescape(u.Path)
	if err != nil {
		unescaped = u.Path
	}
	return vfs.ParsePath(unescaped)
}

func (h *Handler) handleCopyMove(ctx *vfs.Context, w http.ResponseWriter, r *http.Request, src vfs.Path, move bool) {
	dst, err := destinationPath(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	overwrite := r.Header.Get("Overwrite") != "F"

	if move {
		err = h.fs.Move(ctx, src, dst, vfs.MoveOptions{Overwrite: overwrite, Recursive: true})
	} else {
		err = h.fs.Copy(ctx, src, dst, vfs.CopyOptions{Overwrite: overwrite, Recursive: true})
	}
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// WithCORS answers CORS preflights ahead of the method dispatch, so
// browser-based clients can probe the server.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(allowedMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Depth, Destination, Overwrite, Range, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
