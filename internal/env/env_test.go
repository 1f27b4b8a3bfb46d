package env

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		t.Fatalf("os.UserConfigDir() returned error: %v", err)
	}
	if want := filepath.Join(userConfigDir, "depbuild"); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Directory was not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("ConfigDir() created a file instead of a directory")
	}

	again, err := ConfigDir()
	if err != nil || again != dir {
		t.Errorf("second ConfigDir() = %q, %v, want %q", again, err, dir)
	}
}

func TestLookup(t *testing.T) {
	env := []string{"A=1", "B=two=2", "A=3", "EMPTY="}
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"A", "3", true},
		{"B", "two=2", true},
		{"EMPTY", "", true},
		{"MISSING", "", false},
	}
	for _, tt := range tests {
		got, ok := Lookup(env, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Lookup(%q) = %q, %v, want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMerge(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/home/me", "CFLAGS=-g"}
	got, err := Merge(base, map[string]string{
		"PATH":            "/tmp/out/bin:$PATH",
		"LD_LIBRARY_PATH": "/tmp/out/lib:${LD_LIBRARY_PATH}",
		"CFLAGS":          "$CFLAGS -O2 -DNAME=\"x\"",
		"PYTHONPATH":      "$HOME/lib/python",
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := []string{
		"PATH=/tmp/out/bin:/usr/bin",
		"HOME=/home/me",
		"CFLAGS=-g -O2 -DNAME=\"x\"",
		"LD_LIBRARY_PATH=/tmp/out/lib:",
		"PYTHONPATH=/home/me/lib/python",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge =\n%q\nwant\n%q", got, want)
	}
	if base[0] != "PATH=/usr/bin" {
		t.Errorf("Merge modified base: %q", base[0])
	}
}

func TestMergeOverridesDoNotSeeEachOther(t *testing.T) {
	got, err := Merge([]string{"A=base"}, map[string]string{"A": "new", "B": "$A"})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := Lookup(got, "B"); v != "base" {
		t.Errorf("B = %q, want %q", v, "base")
	}
}

func TestMergeRejectsCommandSubstitution(t *testing.T) {
	_, err := Merge(nil, map[string]string{"X": "$(rm -rf /)"})
	if err == nil {
		t.Fatal("Merge accepted a command substitution")
	}
	if !strings.Contains(err.Error(), "environment X") {
		t.Errorf("error = %v, want it to name the variable", err)
	}
}

func TestWithToolDirs(t *testing.T) {
	sep := string(os.PathListSeparator)
	got := WithToolDirs([]string{"PATH=/usr/bin"}, "/a/bin", "/b/bin")
	v, _ := Lookup(got, pathKey(got))
	if want := "/a/bin" + sep + "/b/bin" + sep + "/usr/bin"; v != want {
		t.Errorf("PATH = %q, want %q", v, want)
	}

	got = WithToolDirs(nil, "/a/bin")
	if v, _ := Lookup(got, "PATH"); v != "/a/bin" {
		t.Errorf("PATH = %q, want %q", v, "/a/bin")
	}
}
