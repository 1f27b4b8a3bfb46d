package build

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goplus/depbuild/internal/archive"
	"github.com/goplus/depbuild/internal/shell"
	"github.com/goplus/depbuild/recipe"
	"mvdan.cc/sh/v3/interp"
)

// recordingExecutor records the steps it is asked to run. Commands listed
// in fail exit with the given status.
type recordingExecutor struct {
	steps []shell.Step
	fail  map[string]int
}

func (e *recordingExecutor) Run(ctx context.Context, step shell.Step) error {
	e.steps = append(e.steps, step)
	if status, ok := e.fail[step.Command]; ok {
		return interp.ExitStatus(status)
	}
	return nil
}

func (e *recordingExecutor) commands() string {
	var s []string
	for _, step := range e.steps {
		s = append(s, step.Command)
	}
	return strings.Join(s, "|")
}

// mockFetcher serves downloads from local files keyed by URL and counts
// the downloads it performs.
type mockFetcher struct {
	files     map[string]string
	downloads int
}

func (f *mockFetcher) Fetch(ctx context.Context, url, dir string) (string, error) {
	src, ok := f.files[url]
	if !ok {
		return "", os.ErrNotExist
	}
	dest := filepath.Join(dir, path.Base(url))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f.downloads++
	return dest, copyFile(src, dest)
}

// makeArchive packs files (name→content, slash-separated names) into a
// tar.gz named name and returns its path.
func makeArchive(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	src := t.TempDir()
	var tops []string
	seen := map[string]bool{}
	for file, content := range files {
		p := filepath.Join(src, filepath.FromSlash(file))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		top, _, _ := strings.Cut(file, "/")
		if !seen[top] {
			seen[top] = true
			tops = append(tops, top)
		}
	}
	out := filepath.Join(t.TempDir(), name)
	if err := archive.Create(out, src, tops); err != nil {
		t.Fatal(err)
	}
	return out
}

// writeProject creates <root>/<project>/<recipe file> plus extra files.
func writeProject(t *testing.T, root, project, recipeName, content string, extra map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, project)
	files := map[string]string{recipeName: content}
	for k, v := range extra {
		files[k] = v
	}
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// testBuilder returns a Builder over recipes in root for the linux platform
// with a recording executor and a mock fetcher.
func testBuilder(t *testing.T, root string, files map[string]string) (*Builder, *recordingExecutor, *mockFetcher) {
	t.Helper()
	exec := &recordingExecutor{}
	fetcher := &mockFetcher{files: files}
	b, err := New(Options{
		RecipeDir: root,
		BuildDir:  filepath.Join(t.TempDir(), "out"),
		Jobs:      4,
		Platform:  recipe.Linux,
		Env:       []string{"PATH=/usr/bin", "CFLAGS=-g"},
		Executor:  exec,
		Fetcher:   fetcher,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b, exec, fetcher
}

// newArchiveServer serves data at path and counts requests in hits.
func newArchiveServer(t *testing.T, path string, data []byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}
