// Package frontend carries the plumbing shared by the HTTP and WebDAV
// front-ends: per-request context wiring, Range header parsing, the
// error-to-status mapping, and the listening server lifecycle.
package frontend

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

// WithRequestContext attaches a fresh request-scoped vfs.Context to
// every request. The context is rooted at the request's own context, so
// it cancels when the client goes away or the response completes.
func WithRequestContext(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := vfs.NewContext(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx.Context))
		})
	}
}

// RequestContext recovers the vfs.Context attached by
// WithRequestContext, falling back to a fresh one.
func RequestContext(r *http.Request) *vfs.Context {
	if ctx, ok := vfs.FromContext(r.Context()); ok {
		return ctx
	}
	return vfs.NewContext(r.Context(), nil)
}

// StatusOf maps the error taxonomy onto HTTP status codes.
func StatusOf(err error) int {
	switch vfs.CodeOf(err) {
	case vfs.CodeNotFound:
		return http.StatusNotFound
	case vfs.CodeAlreadyExists:
		return http.StatusConflict
	case vfs.CodePermissionDenied:
		return http.StatusForbidden
	case vfs.CodeNotImplemented:
		return http.StatusNotImplemented
	case vfs.CodeCancelled:
		// 499: client closed the request; no response body follows.
		return 499
	case vfs.CodeNotADirectory, vfs.CodeNotAFile, vfs.CodeNotEmptyDirectory, vfs.CodeRecursiveNotSpecified:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err with its mapped status and a sanitized
// message. Cancelled requests get no body at all.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == 499 {
		return
	}
	http.Error(w, http.StatusText(status), status)
}

// ByteRange is a parsed, bounds-checked Range request.
type ByteRange struct {
	Start int64
	End   int64 // exclusive
}

// ParseRange interprets "bytes=s-e", "bytes=s-" and "bytes=-N" against
// a resource of the given total size. ok=false means no (single) byte
// range was requested; a malformed or unsatisfiable header returns an
// error, which callers answer with 416.
func ParseRange(header string, total int64) (ByteRange, bool, error) {
	if header == "" {
		return ByteRange{}, false, nil
	}

	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return ByteRange{}, false, fmt.Errorf("unsupported range %q", header)
	}

	startRaw, endRaw, found := strings.Cut(spec, "-")
	if !found {
		return ByteRange{}, false, fmt.Errorf("malformed range %q", header)
	}

	// bytes=-N: the last N bytes.
	if startRaw == "" {
		n, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, false, fmt.Errorf("malformed range %q", header)
		}
		if n > total {
			n = total
		}
		return ByteRange{Start: total - n, End: total}, true, nil
	}

	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false, fmt.Errorf("malformed range %q", header)
	}
	if start >= total {
		return ByteRange{}, false, fmt.Errorf("range start %d beyond size %d", start, total)
	}

	// bytes=s-: from s to the end.
	if endRaw == "" {
		return ByteRange{Start: start, End: total}, true, nil
	}

	end, err := strconv.ParseInt(endRaw, 10, 64)
	if err != nil || end < start {
		return ByteRange{}, false, fmt.Errorf("malformed range %q", header)
	}
	if end >= total {
		end = total - 1
	}
	return ByteRange{Start: start, End: end + 1}, true, nil
}

// ContentRange renders the Content-Range header value of a 206.
func (r ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End-1, total)
}

// UnsatisfiableRange renders the Content-Range value of a 416.
func UnsatisfiableRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}
