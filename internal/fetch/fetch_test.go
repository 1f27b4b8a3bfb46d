package fetch

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goplus/depbuild/internal/vcs"
	"github.com/rotisserie/eris"
	"lukechampine.com/blake3"
)

func TestArchiveName(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://zlib.net/zlib-1.3.1.tar.gz", "zlib-1.3.1.tar.gz", false},
		{"https://example.com/files/libpng%2D1.6.tar.xz?raw=1", "libpng-1.6.tar.xz", false},
		{"https://sourceforge.net/projects/x/download#x-1.0.zip", "x-1.0.zip", false},
		{"git+https://github.com/madler/zlib#v1.3.1", "zlib-v1.3.1", false},
		{"file:///srv/mirror/bzip2-1.0.8.tar.gz", "bzip2-1.0.8.tar.gz", false},
		{"https://example.com/", "", true},
		{"zlib-1.3.1.tar.gz", "", true},
		{"https://example.com/x#../evil", "", true},
	}
	for _, tt := range tests {
		got, err := ArchiveName(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ArchiveName(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ArchiveName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

// archiveServer serves content at /<name> and counts requests.
func archiveServer(t *testing.T, files map[string]string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		content, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchDownloadsOnce(t *testing.T) {
	srv, hits := archiveServer(t, map[string]string{"zlib-1.3.1.tar.gz": "archive bytes"})
	dir := filepath.Join(t.TempDir(), "archives")
	f := New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		path, err := f.Fetch(ctx, srv.URL+"/zlib-1.3.1.tar.gz", dir)
		if err != nil {
			t.Fatalf("Fetch #%d: %v", i+1, err)
		}
		if want := filepath.Join(dir, "zlib-1.3.1.tar.gz"); path != want {
			t.Errorf("path = %q, want %q", path, want)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "archive bytes" {
			t.Errorf("content = %q", data)
		}
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestFetchUsesExistingArchive(t *testing.T) {
	srv, hits := archiveServer(t, map[string]string{"a.tar.gz": "fresh"})
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.tar.gz"), []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := New().Fetch(context.Background(), srv.URL+"/a.tar.gz", dir)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "cached" || atomic.LoadInt32(hits) != 0 {
		t.Errorf("cached archive was downloaded again: content %q, %d hits", data, *hits)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv, _ := archiveServer(t, nil)
	dir := t.TempDir()
	if _, err := New().Fetch(context.Background(), srv.URL+"/missing.tar.gz", dir); err == nil {
		t.Fatal("Fetch of missing archive succeeded")
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.tar.gz")); !os.IsNotExist(err) {
		t.Error("failed download left an archive in the cache")
	}
}

func TestFetchMirror(t *testing.T) {
	origin, originHits := archiveServer(t, map[string]string{"z.tar.gz": "origin"})
	mirror, _ := archiveServer(t, map[string]string{"z.tar.gz": "mirror"})

	dir := t.TempDir()
	path, err := New(WithMirror(mirror.URL+"/")).Fetch(context.Background(), origin.URL+"/z.tar.gz", dir)
	if err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != "mirror" {
		t.Errorf("content = %q, want the mirrored copy", data)
	}
	if got := atomic.LoadInt32(originHits); got != 0 {
		t.Errorf("origin hit %d times, want 0", got)
	}

	// A mirror without the archive falls back to the original location.
	empty, _ := archiveServer(t, nil)
	dir = t.TempDir()
	path, err = New(WithMirror(empty.URL)).Fetch(context.Background(), origin.URL+"/z.tar.gz", dir)
	if err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != "origin" {
		t.Errorf("content = %q, want the original copy", data)
	}
}

// fakeVCS writes a fixed file instead of talking to git.
type fakeVCS struct {
	syncs []string
}

func (v *fakeVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	v.syncs = append(v.syncs, remote+"#"+ref)
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "README"), []byte(ref), 0o644)
}

func (v *fakeVCS) Revision(ctx context.Context, dir string) (string, error) {
	return strings.Repeat("0", 40), nil
}

func TestFetchGit(t *testing.T) {
	v := &fakeVCS{}
	f := New(WithVCS(v))
	dir := t.TempDir()
	url := "git+https://github.com/madler/zlib#v1.3.1"

	for i := 0; i < 2; i++ {
		path, err := f.Fetch(context.Background(), url, dir)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if want := filepath.Join(dir, "zlib-v1.3.1"); path != want {
			t.Errorf("path = %q, want %q", path, want)
		}
	}
	if len(v.syncs) != 1 || v.syncs[0] != "https://github.com/madler/zlib#v1.3.1" {
		t.Errorf("syncs = %q, want a single sync", v.syncs)
	}
	if _, err := os.Stat(filepath.Join(dir, "zlib-v1.3.1", ".git")); !os.IsNotExist(err) {
		t.Error("checkout kept its .git directory")
	}
	if data, _ := os.ReadFile(filepath.Join(dir, "zlib-v1.3.1", "README")); string(data) != "v1.3.1" {
		t.Errorf("README = %q", data)
	}
	if got, want := vcs.SavedRevision(filepath.Join(dir, "zlib-v1.3.1")), strings.Repeat("0", 40); got != want {
		t.Errorf("revision = %q, want %q", got, want)
	}
}

func TestVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.tar.gz")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	b3 := blake3.Sum256([]byte("hello"))

	tests := []struct {
		checksum string
		mismatch bool
		wantErr  bool
	}{
		{"sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", false, false},
		{"blake3:" + hex.EncodeToString(b3[:]), false, false},
		{"sha256:" + strings.Repeat("0", 64), true, true},
		{"md5:5d41402abc4b2a76b9719d911017c592", false, true},
	}
	for _, tt := range tests {
		err := Verify(path, tt.checksum)
		if (err != nil) != tt.wantErr {
			t.Errorf("Verify(%q) = %v, wantErr %v", tt.checksum, err, tt.wantErr)
			continue
		}
		var sumErr *ChecksumError
		if got := eris.As(err, &sumErr); got != tt.mismatch {
			t.Errorf("Verify(%q) = %v, want ChecksumError: %v", tt.checksum, err, tt.mismatch)
		}
	}
}

func TestVerifyDirectory(t *testing.T) {
	if err := Verify(t.TempDir(), "sha256:"+strings.Repeat("0", 64)); err == nil {
		t.Error("Verify of a directory succeeded")
	}
}
