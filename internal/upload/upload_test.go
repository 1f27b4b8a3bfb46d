package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type request struct {
	method, path, contentType, body string
}

func newBucketServer(t *testing.T, status int) (*httptest.Server, func() []request) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, request{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)})
		mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("ETag", `"etag"`)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), reqs...)
	}
}

func testClient(t *testing.T, endpoint, prefix string) *Client {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	c, err := New(context.Background(), Options{
		Endpoint:  endpoint,
		Bucket:    "artifacts",
		Prefix:    prefix,
		AccessKey: "key",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestUploadFile(t *testing.T) {
	srv, requests := newBucketServer(t, http.StatusOK)
	c := testClient(t, srv.URL, "deps/linux")

	file := filepath.Join(t.TempDir(), "zlib-1.3.1-linux.tar.zst")
	if err := os.WriteFile(file, []byte("artifact"), 0o644); err != nil {
		t.Fatal(err)
	}
	key, err := c.UploadFile(context.Background(), file)
	if err != nil {
		t.Fatal(err)
	}
	if want := "deps/linux/zlib-1.3.1-linux.tar.zst"; key != want {
		t.Errorf("key = %q, want %q", key, want)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	want := request{http.MethodPut, "/artifacts/deps/linux/zlib-1.3.1-linux.tar.zst", "application/zstd", "artifact"}
	if reqs[0] != want {
		t.Errorf("got %+v, want %+v", reqs[0], want)
	}
}

func TestUploadFileError(t *testing.T) {
	srv, _ := newBucketServer(t, http.StatusForbidden)
	c := testClient(t, srv.URL, "")

	file := filepath.Join(t.TempDir(), "a.tar.gz")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UploadFile(context.Background(), file); err == nil {
		t.Error("UploadFile succeeded against a failing bucket")
	}
	if _, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("UploadFile of a missing file succeeded")
	}
}

func TestNewOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no bucket", Options{AccessKey: "a", SecretKey: "b"}},
		{"half credentials", Options{Bucket: "b", AccessKey: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(context.Background(), tt.opts); err == nil {
				t.Error("New succeeded")
			}
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", "a.tar.gz", "a.tar.gz"},
		{"deps", "a.tar.gz", "deps/a.tar.gz"},
		{"deps/", "a.tar.gz", "deps/a.tar.gz"},
	}
	for _, tt := range tests {
		c := &Client{prefix: tt.prefix}
		if got := c.Key(tt.name); got != tt.want {
			t.Errorf("Key(%q) with prefix %q = %q, want %q", tt.name, tt.prefix, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := []struct{ key, want string }{
		{"a.tar.zst", "application/zstd"},
		{"a.tar.gz", "application/gzip"},
		{"index.json", "application/json"},
		{"a.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentType(tt.key); got != tt.want {
			t.Errorf("contentType(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
