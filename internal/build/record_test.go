package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goplus/depbuild/internal/fetch"
	"github.com/goplus/depbuild/recipe"
)

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := &Record{
		Project:    "zlib",
		Version:    "1.3.1",
		Platform:   recipe.Linux,
		BuildDir:   "/opt/deps",
		RecipeHash: "h1:abc",
		Archives:   []string{"zlib-1.3.1.tar.gz"},
		BuildTime:  time.Date(2024, 1, 22, 10, 0, 0, 0, time.UTC),
	}
	if err := saveRecord(dir, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadRecord(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Project != want.Project || got.Version != want.Version || got.Platform != want.Platform ||
		got.BuildDir != want.BuildDir || got.RecipeHash != want.RecipeHash ||
		len(got.Archives) != 1 || !got.BuildTime.Equal(want.BuildTime) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadRecord(t *testing.T) {
	t.Run("not exist", func(t *testing.T) {
		if _, err := LoadRecord(t.TempDir()); !os.IsNotExist(err) {
			t.Errorf("err = %v, want not exist", err)
		}
	})
	t.Run("invalid json", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, recordFile), []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadRecord(dir)
		if err == nil || os.IsNotExist(err) {
			t.Errorf("err = %v, want parse error", err)
		}
	})
}

func TestRecipeHash(t *testing.T) {
	dir := writeProject(t, t.TempDir(), "zlib", "recipe.yaml", zlibRecipe, map[string]string{
		"patches/01-fix.patch": "--- a\n+++ b\n",
	})
	base, err := RecipeHash(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Caches and the record do not count.
	for name, data := range map[string]string{
		"archives/zlib-1.3.1.tar.gz":  "archive",
		"working/zlib-1.3.1/Makefile": "all:",
		recordFile:                    "{}",
	} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, err := RecipeHash(dir); err != nil || got != base {
		t.Errorf("hash changed to %q (%v) after writing caches", got, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "patches", "01-fix.patch"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := RecipeHash(dir); got == base {
		t.Error("hash unchanged after editing a patch")
	}
}

// gitStub checks out a fixed tree at a fixed commit.
type gitStub struct {
	rev string
}

func (g *gitStub) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "Makefile"), []byte("all:\n"), 0o644)
}

func (g *gitStub) Revision(ctx context.Context, dir string) (string, error) {
	return g.rev, nil
}

func TestRecordRevisions(t *testing.T) {
	root := t.TempDir()
	dir := writeProject(t, root, "zlib", "recipe.yaml", `
downloads:
  - git+https://github.com/madler/zlib#v1.3.1
commands: [make]
`, nil)
	rev := "51b7f2abdade71cd9bb0e7a373ef2610ec6f9daf"
	b, err := New(Options{
		RecipeDir: root,
		BuildDir:  t.TempDir(),
		Executor:  &recordingExecutor{},
		Fetcher:   fetch.New(fetch.WithVCS(&gitStub{rev: rev})),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Build(context.Background(), "zlib"); err != nil {
		t.Fatalf("Build: %v", err)
	}

	rec, err := LoadRecord(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.Revisions["zlib-v1.3.1"]; got != rev {
		t.Errorf("Revisions = %v, want zlib-v1.3.1 at %s", rec.Revisions, rev)
	}
}
