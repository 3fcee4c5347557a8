// Package webdavfs implements a vfs backend over a remote WebDAV
// server: PROPFIND-backed metadata, ranged GET reads, streaming PUT
// writes, and native COPY/MOVE for single files. Basic, Bearer and
// Digest authentication are supported; a Digest 401 seeds the auth
// state and the original request is retried exactly once.
package webdavfs

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

const propfindBody = `<?xml version="1.0" encoding="utf-8"?><d:propfind xmlns:d="DAV:"><d:allprop/></d:propfind>`

// FileSystem is the full backend: the generic drivers wrapped around
// the WebDAV primitive, with Move overridden to use the native MOVE
// method for single files.
type FileSystem struct {
	vfs.FileSystem
	client *client
}

// NewFileSystem connects to baseURL with the given HTTP client and
// authenticator. auth may be nil for anonymous servers.
func NewFileSystem(baseURL *url.URL, httpClient *http.Client, auth authenticator) *FileSystem {
	c := &client{baseURL: baseURL, http: httpClient, auth: auth}
	return &FileSystem{FileSystem: vfs.Wrap(c), client: c}
}

// Move uses the server-side MOVE method when src is a single file,
// falling back to the generic copy-then-delete driver for directories.
func (f *FileSystem) Move(ctx *vfs.Context, src, dst vfs.Path, opts vfs.MoveOptions) error {
	st, err := f.Stat(ctx, src)
	if err != nil {
		return err
	}
	if st == nil {
		return vfs.NewError(vfs.CodeNotFound, &src, "source does not exist")
	}
	if st.IsDirectory {
		return f.FileSystem.Move(ctx, src, dst, opts)
	}

	dstSt, err := f.Stat(ctx, dst)
	if err != nil {
		return err
	}
	if dstSt != nil && !opts.Overwrite {
		return vfs.NewError(vfs.CodeAlreadyExists, &dst, "destination already exists")
	}

	return f.client.moveFile(ctx, src, dst, opts.Overwrite)
}

// client implements vfs.Primitive over the WebDAV wire protocol.
type client struct {
	baseURL *url.URL
	http    *http.Client
	auth    authenticator
}

// urlFor renders the absolute URL of p, escaping each segment.
// Collections conventionally carry a trailing slash.
func (c *client) urlFor(p vfs.Path, dir bool) string {
	u := *c.baseURL
	escaped := make([]string, 0, len(p.Segments()))
	for _, segment := range p.Segments() {
		escaped = append(escaped, url.PathEscape(segment))
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(escaped, "/")
	if dir && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// do sends a request built by build, replaying it once if the server
// answers 401 with a fresh Digest challenge. build is called per
// attempt so the body is never reused.
func (c *client) do(ctx *vfs.Context, build func() (*http.Request, error)) (*http.Response, error) {
	send := func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx.Context)
		if c.auth != nil {
			if err := c.auth.apply(req); err != nil {
				return nil, err
			}
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Cancelled() {
				return nil, vfs.NewError(vfs.CodeCancelled, nil, err.Error())
			}
			return nil, vfs.WrapError(vfs.CodeIOError, nil, err)
		}
		return resp, nil
	}

	resp, err := send()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.auth != nil && c.auth.handleChallenge(resp) {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return send()
	}
	return resp, nil
}

// request is the simple non-streaming variant of do.
func (c *client) request(ctx *vfs.Context, method, u string, body []byte, header map[string]string) (*http.Response, error) {
	return c.do(ctx, func() (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, u, reader)
		if err != nil {
			return nil, vfs.WrapError(vfs.CodeIOError, nil, err)
		}
		for key, value := range header {
			req.Header.Set(key, value)
		}
		return req, nil
	})
}

func statusError(code int, p vfs.Path) error {
	switch code {
	case http.StatusNotFound, http.StatusConflict:
		return vfs.NewError(vfs.CodeNotFound, &p, "remote path does not exist")
	case http.StatusForbidden, http.StatusUnauthorized:
		return vfs.NewError(vfs.CodePermissionDenied, &p, "remote server denied access")
	case http.StatusMethodNotAllowed, http.StatusPreconditionFailed:
		return vfs.NewError(vfs.CodeAlreadyExists, &p, "remote path already exists")
	case http.StatusNotImplemented:
		return vfs.NewError(vfs.CodeNotImplemented, &p, "remote server does not implement the method")
	default:
		return vfs.NewError(vfs.CodeIOError, &p, fmt.Sprintf("unexpected remote status %d", code))
	}
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// propfind issues a PROPFIND at depth and parses the multistatus body.
func (c *client) propfind(ctx *vfs.Context, p vfs.Path, depth string) ([]resource, error) {
	resp, err := c.request(ctx, "PROPFIND", c.urlFor(p, p.IsRoot()), []byte(propfindBody), map[string]string{
		"Depth":        depth,
		"Content-Type": "application/xml",
	})
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, statusError(resp.StatusCode, p)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
	}

	resources, err := parseMultistatus(data)
	if err != nil {
		return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
	}
	return resources, nil
}

func (c *client) statusOf(p vfs.Path, res resource) vfs.FileStatus {
	if res.IsCollection {
		return vfs.NewDirectoryStatus(p)
	}
	size := int64(0)
	if res.Size != nil {
		size = *res.Size
	}
	return vfs.NewFileStatus(p, size, res.ContentType)
}

func (c *client) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	resources, err := c.propfind(ctx, p, "0")
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, nil
	}

	st := c.statusOf(p, resources[0])
	return &st, nil
}

func (c *client) ListDirect(ctx *vfs.Context, p vfs.Path) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		if err := ctx.CheckCancelled(); err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}

		resources, err := c.propfind(ctx, p, "1")
		if err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}
		if resources == nil {
			yield(vfs.FileStatus{}, vfs.NewError(vfs.CodeNotFound, &p, "remote directory does not exist"))
			return
		}

		// Hrefs were URL-decoded by the parser; compare against the
		// decoded target path.
		target := strings.TrimSuffix(strings.TrimSuffix(c.baseURL.Path, "/")+p.String(), "/")

		for _, res := range resources {
			// The first response echoes the target itself.
			href := strings.TrimSuffix(pathOfHref(res.Href), "/")
			if href == target {
				continue
			}

			name := path.Base(href)
			if name == "" || name == "/" || name == "." {
				name = res.DisplayName
			}
			if name == "" {
				continue
			}

			if !yield(c.statusOf(p.Join(name), res), nil) {
				return
			}
		}
	}
}

// cancelAwareBody maps transport aborts back to the cancellation error
// taxonomy at the next chunk boundary.
type cancelAwareBody struct {
	ctx  *vfs.Context
	body io.ReadCloser
}

func (b *cancelAwareBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err != nil && err != io.EOF && b.ctx.Cancelled() {
		return n, vfs.NewError(vfs.CodeCancelled, nil, err.Error())
	}
	return n, err
}

func (b *cancelAwareBody) Close() error {
	return b.body.Close()
}

func (c *client) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	header := map[string]string{}
	if opts.Start != nil || opts.End != nil {
		start := int64(0)
		if opts.Start != nil {
			start = *opts.Start
		}
		if opts.End != nil {
			header["Range"] = fmt.Sprintf("bytes=%d-%d", start, *opts.End-1)
		} else {
			header["Range"] = fmt.Sprintf("bytes=%d-", start)
		}
	}

	resp, err := c.request(ctx, http.MethodGet, c.urlFor(p, false), nil, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		defer drainAndClose(resp)
		return nil, statusError(resp.StatusCode, p)
	}

	return &cancelAwareBody{ctx: ctx, body: resp.Body}, nil
}

// putWriter streams its bytes into an in-flight PUT request. Close
// waits for the server's verdict.
type putWriter struct {
	pipe *io.PipeWriter
	done chan error
}

func (w *putWriter) Write(p []byte) (int, error) {
	return w.pipe.Write(p)
}

func (w *putWriter) Close() error {
	w.pipe.Close()
	return <-w.done
}

func (c *client) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	if opts.Mode == vfs.WriteModeAppend {
		return nil, vfs.NewError(vfs.CodeNotImplemented, &p, "append is not supported over WebDAV")
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		// The streaming body cannot be replayed, so the digest state
		// must already be seeded by the pre-open stat; a 401 here
		// surfaces as permissionDenied.
		resp, err := c.do(ctx, func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodPut, c.urlFor(p, false), pr)
			if err != nil {
				return nil, vfs.WrapError(vfs.CodeIOError, nil, err)
			}
			req.Header.Set("Content-Type", "application/octet-stream")
			return req, nil
		})
		if err != nil {
			pr.CloseWithError(err)
			done <- err
			return
		}
		defer drainAndClose(resp)

		switch resp.StatusCode {
		case http.StatusCreated, http.StatusNoContent, http.StatusOK:
			done <- nil
		default:
			err := statusError(resp.StatusCode, p)
			pr.CloseWithError(err)
			done <- err
		}
	}()

	return &putWriter{pipe: pw, done: done}, nil
}

func (c *client) CreateDirectoryDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	resp, err := c.request(ctx, "MKCOL", c.urlFor(p, true), nil, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusMethodNotAllowed:
		// 405 means the collection already exists, which the generic
		// driver has ruled out or will tolerate.
		return nil
	default:
		return statusError(resp.StatusCode, p)
	}
}

func (c *client) DeleteDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	resp, err := c.request(ctx, http.MethodDelete, c.urlFor(p, false), nil, nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	default:
		return statusError(resp.StatusCode, p)
	}
}

func overwriteHeader(overwrite bool) string {
	if overwrite {
		return "T"
	}
	return "F"
}

func (c *client) CopyFile(ctx *vfs.Context, src, dst vfs.Path, overwrite bool) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	resp, err := c.request(ctx, "COPY", c.urlFor(src, false), nil, map[string]string{
		"Destination": c.urlFor(dst, false),
		"Overwrite":   overwriteHeader(overwrite),
	})
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return statusError(resp.StatusCode, dst)
	}
}

func (c *client) moveFile(ctx *vfs.Context, src, dst vfs.Path, overwrite bool) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	resp, err := c.request(ctx, "MOVE", c.urlFor(src, false), nil, map[string]string{
		"Destination": c.urlFor(dst, false),
		"Overwrite":   overwriteHeader(overwrite),
	})
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return statusError(resp.StatusCode, dst)
	}
}

func (c *client) Dispose() error {
	c.http.CloseIdleConnections()
	return nil
}
