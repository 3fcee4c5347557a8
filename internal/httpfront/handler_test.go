package httpfront

import (
	"context"
	"encoding/json"
	"io"
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

func newHandler(t *testing.T) (http.Handler, vfs.FileSystem) {
	t.Helper()

	fs := vfs.Wrap(memory.NewFileSystem())
	ctx := vfs.NewContext(context.Background(), nil)

	vfstest.WriteTree(t, ctx, fs, vfs.Root, map[string]string{
		"hello.txt":    "hello world",
		"docs/a.md":    "# a",
		"docs/b.md":    "# b",
		"media/img.png": "binary",
	})

	return frontend.WithRequestContext(nil)(NewHandler(fs, nil)), fs
}

func get(t *testing.T, handler http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDownloadFile(t *testing.T) {
	handler, _ := newHandler(t)

	rec := get(t, handler, "/hello.txt", nil)
	if e, g := http.StatusOK, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}
	if e, g := "hello world", rec.Body.String(); e != g {
		t.Errorf("body: expected '%s', got '%s'", e, g)
	}
}

func TestRangeRequests(t *testing.T) {
	handler, _ := newHandler(t)

	cases := []struct {
		header       string
		status       int
		expected     string
		contentRange string
	}{
		{header: "bytes=0-4", status: http.StatusPartialContent, expected: "hello", contentRange: "bytes 0-4/11"},
		{header: "bytes=6-", status: http.StatusPartialContent, expected: "world", contentRange: "bytes 6-10/11"},
		{header: "bytes=-5", status: http.StatusPartialContent, expected: "world", contentRange: "bytes 6-10/11"},
		{header: "bytes=99-", status: http.StatusRequestedRangeNotSatisfiable},
		{header: "bytes=abc", status: http.StatusRequestedRangeNotSatisfiable},
	}

	for _, c := range cases {
		t.Run(c.header, func(t *testing.T) {
			rec := get(t, handler, "/hello.txt", map[string]string{"Range": c.header})

			if e, g := c.status, rec.Code; e != g {
				t.Fatalf("status: expected %d, got %d", e, g)
			}
			if c.status == http.StatusRequestedRangeNotSatisfiable {
				if e, g := "bytes */11", rec.Header().Get("Content-Range"); e != g {
					t.Errorf("Content-Range: expected '%s', got '%s'", e, g)
				}
				return
			}
			if e, g := c.expected, rec.Body.String(); e != g {
				t.Errorf("body: expected '%s', got '%s'", e, g)
			}
			if e, g := c.contentRange, rec.Header().Get("Content-Range"); e != g {
				t.Errorf("Content-Range: expected '%s', got '%s'", e, g)
			}
		})
	}
}

func TestHTMLListing(t *testing.T) {
	handler, _ := newHandler(t)

	rec := get(t, handler, "/", nil)
	if e, g := http.StatusOK, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type: expected HTML, got '%s'", rec.Header().Get("Content-Type"))
	}

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	for _, expected := range []string{"hello.txt", "docs/", "media/"} {
		if !strings.Contains(string(body), expected) {
			t.Errorf("listing should mention '%s'", expected)
		}
	}
}

func TestJSONListing(t *testing.T) {
	handler, _ := newHandler(t)

	rec := get(t, handler, "/docs", map[string]string{"Accept": "application/json"})
	if e, g := http.StatusOK, rec.Code; e != g {
		t.Fatalf("status: expected %d, got %d", e, g)
	}

	listing := struct {
		Path  string `json:"path"`
		Files []struct {
			Name        string `json:"name"`
			Path        string `json:"path"`
			IsDirectory bool   `json:"isDirectory"`
			Size        *int64 `json:"size"`
		} `json:"files"`
	}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := "/docs", listing.Path; e != g {
		t.Errorf("path: expected '%s', got '%s'", e, g)
	}
	if e, g := 2, len(listing.Files); e != g {
		t.Fatalf("len(files): expected %d, got %d", e, g)
	}
	for _, file := range listing.Files {
		if file.IsDirectory {
			t.Errorf("'%s' should be a file", file.Name)
		}
		if file.Size == nil {
			t.Errorf("'%s' should carry a size", file.Name)
		}
	}
}

func TestRecursiveListing(t *testing.T) {
	handler, _ := newHandler(t)

	rec := get(t, handler, "/docs?recursive=true", map[string]string{"Accept": "application/json"})

	listing := struct {
		Files []struct {
			Path string `json:"path"`
		} `json:"files"`
	}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	paths := map[string]bool{}
	for _, file := range listing.Files {
		paths[file.Path] = true
	}
	for _, expected := range []string{"/docs/a.md", "/docs/b.md"} {
		if !paths[expected] {
			t.Errorf("recursive listing should contain '%s', got %v", expected, paths)
		}
	}
}

func TestMissingIs404(t *testing.T) {
	handler, _ := newHandler(t)

	rec := get(t, handler, "/nope.txt", nil)
	if e, g := http.StatusNotFound, rec.Code; e != g {
		t.Errorf("status: expected %d, got %d", e, g)
	}
}

func TestNonGetIs404(t *testing.T) {
	handler, _ := newHandler(t)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/hello.txt", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if e, g := http.StatusNotFound, rec.Code; e != g {
			t.Errorf("%s status: expected %d, got %d", method, e, g)
		}
	}
}
