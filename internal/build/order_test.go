package build

import (
	"errors"
	"strings"
	"testing"
)

func TestOrder(t *testing.T) {
	graph := map[string][]string{
		"OpenEXR": {"zlib", "Imath"},
		"LibPNG":  {"zlib"},
		"Imath":   {},
		"zlib":    nil,
		"OIIO":    {"OpenEXR", "LibPNG"},
	}
	deps := func(p string) ([]string, error) {
		ds, ok := graph[p]
		if !ok {
			return nil, errors.New("unknown project " + p)
		}
		return ds, nil
	}

	tests := []struct {
		name     string
		projects []string
		want     string
	}{
		{"leaf", []string{"zlib"}, "zlib"},
		{"one level", []string{"LibPNG"}, "zlib LibPNG"},
		{"siblings sorted", []string{"OpenEXR"}, "Imath zlib OpenEXR"},
		{"shared dependency once", []string{"OIIO"}, "zlib LibPNG Imath OpenEXR OIIO"},
		{"requested order kept", []string{"Imath", "LibPNG"}, "Imath zlib LibPNG"},
		{"already visited", []string{"zlib", "LibPNG", "zlib"}, "zlib LibPNG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Order(tt.projects, deps)
			if err != nil {
				t.Fatal(err)
			}
			if s := strings.Join(got, " "); s != tt.want {
				t.Errorf("got %q, want %q", s, tt.want)
			}
		})
	}
}

func TestOrderCycle(t *testing.T) {
	graph := map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"B"},
	}
	_, err := Order([]string{"A"}, func(p string) ([]string, error) { return graph[p], nil })
	if err == nil {
		t.Fatal("Order succeeded on a cycle")
	}
	if want := "dependency cycle: B -> C -> B"; !strings.Contains(err.Error(), want) {
		t.Errorf("err = %v, want containing %q", err, want)
	}
}

func TestOrderDepsError(t *testing.T) {
	_, err := Order([]string{"A"}, func(p string) ([]string, error) {
		return nil, errors.New("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "dependencies of A") {
		t.Errorf("err = %v", err)
	}
}

func TestDependencies(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, "LibPNG", "recipe.yaml", `
version: 1.6.44
dependencies: [zlib]
commands: ["{undefined} still orders"]
platforms:
  windows:
    commands: [nmake]
`, nil)
	writeProject(t, root, "zlib", "recipe.yaml", zlibRecipe, nil)
	b, _, _ := testBuilder(t, root, nil)

	got, err := Order([]string{"LibPNG"}, b.Dependencies)
	if err != nil {
		t.Fatal(err)
	}
	if s, want := strings.Join(got, " "), "zlib LibPNG"; s != want {
		t.Errorf("got %q, want %q", s, want)
	}

	b.opts.Platform = "windows"
	ds, err := b.Dependencies("LibPNG")
	if err != nil {
		t.Fatal(err)
	}
	if s, want := strings.Join(ds, " "), "zlib"; s != want {
		t.Errorf("windows dependencies = %q, want %q", s, want)
	}

	if _, err := b.Dependencies("missing"); err == nil {
		t.Error("Dependencies of a missing project succeeded")
	}
}
