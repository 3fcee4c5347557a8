package webdavfront

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/internal/frontend"
	"github.com/zhangzqs/govfs/pkg/vfs"
	"github.com/zhangzqs/govfs/pkg/vfs/memory"
	"github.com/zhangzqs/govfs/pkg/vfs/vfstest"
)

func newContext() *vfs.Context {
	return vfs.NewContext(context.Background(), nil)
}

func p(s string) vfs.Path {
	return vfs.MustParsePath(s)
}

func newHandler(t *testing.T) (http.Handler, vfs.FileSystem) {
	t.Helper()

	fs := vfs.Wrap(memory.NewFileSystem())
	return frontend.WithRequestContext(nil)(NewHandler(fs, nil)), fs
}

func do(t *testing.T, handler http.Handler, method, target string, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type parsedResponse struct {
	Href     string `xml:"href"`
	Propstat struct {
		Prop struct {
			ResourceType struct {
				Collection *struct{} `xml:"collection"`
			} `xml:"resourcetype"`
			GetContentLength string `xml:"getcontentlength"`
		} `xml:"prop"`
		Status string `xml:"status"`
	} `xml:"propstat"`
}

type parsedMultistatus struct {
	XMLName   xml.Name         `xml:"multistatus"`
	Responses []parsedResponse `xml:"response"`
}

func TestPropfindDepth1(t *testing.T) {
	handler, fs := newHandler(t)
	ctx := newContext()

	if err := fs.CreateDirectory(ctx, p("/data"), vfs.CreateDirectoryOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	vfstest.WriteTree(t, ctx, fs, vfs.Root, map[string]string{"config.json": "{}"})

	rec := do(t, handler, "PROPFIND", "/", "", map[string]string{"Depth": "1"})
	if e, g := http.StatusMultiStatus, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d (%s)", e, g, rec.Body.String())
	}

	ms := parsedMultistatus{}
	if err := xml.Unmarshal(rec.Body.Bytes(), &ms); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := 3, len(ms.Responses); e != g {
		t.Fatalf("len(responses): expected %d, got %d", e, g)
	}

	byHref := map[string]parsedResponse{}
	for _, r := range ms.Responses {
		byHref[r.Href] = r
	}

	if _, ok := byHref["/"]; !ok {
		t.Errorf("expected a response for '/', got %v", byHref)
	}

	dir, ok := byHref["/data/"]
	if !ok {
		t.Fatalf("expected a '/data/' response with trailing slash, got %v", byHref)
	}
	if dir.Propstat.Prop.ResourceType.Collection == nil {
		t.Errorf("'/data/' should be a collection")
	}

	file, ok := byHref["/config.json"]
	if !ok {
		t.Fatalf("expected a '/config.json' response, got %v", byHref)
	}
	if e, g := "2", file.Propstat.Prop.GetContentLength; e != g {
		t.Errorf("getcontentlength: expected '%s', got '%s'", e, g)
	}
	if !strings.Contains(file.Propstat.Status, "200") {
		t.Errorf("propstat status: expected 200, got '%s'", file.Propstat.Status)
	}
}

func TestPropfindDepth0(t *testing.T) {
	handler, fs := newHandler(t)
	vfstest.WriteTree(t, newContext(), fs, vfs.Root, map[string]string{"a.txt": "a"})

	rec := do(t, handler, "PROPFIND", "/", "", map[string]string{"Depth": "0"})

	ms := parsedMultistatus{}
	if err := xml.Unmarshal(rec.Body.Bytes(), &ms); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if e, g := 1, len(ms.Responses); e != g {
		t.Errorf("Depth 0 should return only the target, got %d responses", g)
	}
}

func TestPutCreatesFile(t *testing.T) {
	handler, fs := newHandler(t)

	rec := do(t, handler, http.MethodPut, "/upload.txt", "payload", nil)
	if e, g := http.StatusCreated, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}

	data, err := fs.ReadAsBytes(newContext(), p("/upload.txt"), vfs.ReadOptions{})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if e, g := "payload", string(data); e != g {
		t.Errorf("stored content: expected '%s', got '%s'", e, g)
	}
}

func TestDeleteIsRecursive(t *testing.T) {
	handler, fs := newHandler(t)
	vfstest.WriteTree(t, newContext(), fs, vfs.Root, map[string]string{"dir/f.txt": "f"})

	rec := do(t, handler, http.MethodDelete, "/dir", "", nil)
	if e, g := http.StatusNoContent, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}

	exists, err := fs.Exists(newContext(), p("/dir"))
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if exists {
		t.Errorf("directory should be deleted")
	}
}

func TestMkcolConflictIs405(t *testing.T) {
	handler, fs := newHandler(t)

	rec := do(t, handler, "MKCOL", "/fresh", "", nil)
	if e, g := http.StatusCreated, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}

	if exists, err := fs.Exists(newContext(), p("/fresh")); err != nil || !exists {
		t.Fatalf("collection should exist (exists=%v, err=%v)", exists, err)
	}

	rec = do(t, handler, "MKCOL", "/fresh", "", nil)
	if e, g := http.StatusMethodNotAllowed, rec.Code; e != g {
		t.Errorf("recreating a collection: expected %d, got %d", e, g)
	}
}

func TestGetRange(t *testing.T) {
	handler, fs := newHandler(t)
	vfstest.WriteTree(t, newContext(), fs, vfs.Root, map[string]string{"data.bin": "0123456789"})

	rec := do(t, handler, http.MethodGet, "/data.bin", "", map[string]string{"Range": "bytes=2-7"})
	if e, g := http.StatusPartialContent, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}
	if e, g := "234567", rec.Body.String(); e != g {
		t.Errorf("body: expected '%s', got '%s'", e, g)
	}
	if e, g := "bytes 2-7/10", rec.Header().Get("Content-Range"); e != g {
		t.Errorf("Content-Range: expected '%s', got '%s'", e, g)
	}

	rec = do(t, handler, http.MethodGet, "/data.bin", "", map[string]string{"Range": "bytes=50-60"})
	if e, g := http.StatusRequestedRangeNotSatisfiable, rec.Code; e != g {
		t.Errorf("out-of-range status: expected %d, got %d", e, g)
	}
	if e, g := "bytes */10", rec.Header().Get("Content-Range"); e != g {
		t.Errorf("416 Content-Range: expected '%s', got '%s'", e, g)
	}

	rec = do(t, handler, http.MethodGet, "/data.bin", "", map[string]string{"Range": "bytes=-4"})
	if e, g := "6789", rec.Body.String(); e != g {
		t.Errorf("suffix range: expected '%s', got '%s'", e, g)
	}
}

func TestCopyAndMove(t *testing.T) {
	handler, fs := newHandler(t)
	vfstest.WriteTree(t, newContext(), fs, vfs.Root, map[string]string{"src.txt": "content"})

	rec := do(t, handler, "COPY", "/src.txt", "", map[string]string{
		"Destination": "http://example/copy.txt",
		"Overwrite":   "F",
	})
	if e, g := http.StatusCreated, rec.Code; e != g {
		t.Fatalf("COPY status: expected %d, got %d", e, g)
	}

	rec = do(t, handler, "MOVE", "/src.txt", "", map[string]string{
		"Destination": "http://example/moved.txt",
	})
	if e, g := http.StatusCreated, rec.Code; e != g {
		t.Fatalf("MOVE status: expected %d, got %d", e, g)
	}

	ctx := newContext()
	for _, expected := range []string{"/copy.txt", "/moved.txt"} {
		data, err := fs.ReadAsBytes(ctx, p(expected), vfs.ReadOptions{})
		if err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
		if e, g := "content", string(data); e != g {
			t.Errorf("%s: expected '%s', got '%s'", expected, e, g)
		}
	}
	if exists, err := fs.Exists(ctx, p("/src.txt")); err != nil || exists {
		t.Errorf("source should be gone after MOVE (exists=%v, err=%v)", exists, err)
	}
}

func TestCopyWithoutOverwriteConflicts(t *testing.T) {
	handler, fs := newHandler(t)
	vfstest.WriteTree(t, newContext(), fs, vfs.Root, map[string]string{
		"src.txt": "new",
		"dst.txt": "old",
	})

	rec := do(t, handler, "COPY", "/src.txt", "", map[string]string{
		"Destination": "http://example/dst.txt",
		"Overwrite":   "F",
	})
	if e, g := http.StatusConflict, rec.Code; e != g {
		t.Errorf("status: expected %d, got %d", e, g)
	}
}

func TestOptionsAdvertisesDAV(t *testing.T) {
	handler, _ := newHandler(t)

	rec := do(t, handler, http.MethodOptions, "/", "", nil)
	if e, g := http.StatusOK, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}
	if e, g := "1, 2", rec.Header().Get("DAV"); e != g {
		t.Errorf("DAV: expected '%s', got '%s'", e, g)
	}
	if !strings.Contains(rec.Header().Get("Allow"), "PROPFIND") {
		t.Errorf("Allow should list PROPFIND, got '%s'", rec.Header().Get("Allow"))
	}
}

func TestUnknownMethodIs405(t *testing.T) {
	handler, _ := newHandler(t)

	rec := do(t, handler, "BREW", "/", "", nil)
	if e, g := http.StatusMethodNotAllowed, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}
	if rec.Header().Get("Allow") == "" {
		t.Errorf("a 405 should carry an Allow header")
	}
}

func TestHeadReturnsHeadersOnly(t *testing.T) {
	handler, fs := newHandler(t)
	vfstest.WriteTree(t, newContext(), fs, vfs.Root, map[string]string{"h.txt": "abcde"})

	rec := do(t, handler, http.MethodHead, "/h.txt", "", nil)
	if e, g := http.StatusOK, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}
	if e, g := "5", rec.Header().Get("Content-Length"); e != g {
		t.Errorf("Content-Length: expected '%s', got '%s'", e, g)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD should not return a body, got %d bytes", rec.Body.Len())
	}
}
