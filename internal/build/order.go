package build

import (
	"sort"
	"strings"

	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
)

// Order returns the requested projects together with everything they
// transitively depend on, dependencies before their dependents. deps
// returns a project's declared dependencies. Requested projects keep their
// relative order where the graph allows; siblings are visited by name.
// A dependency cycle is an error naming the cycle.
func Order(projects []string, deps func(project string) ([]string, error)) ([]string, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var order, stack []string

	var visit func(p string) error
	visit = func(p string) error {
		switch state[p] {
		case done:
			return nil
		case visiting:
			i := len(stack) - 1
			for i > 0 && stack[i] != p {
				i--
			}
			cycle := append(append([]string(nil), stack[i:]...), p)
			return eris.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
		}
		state[p] = visiting
		stack = append(stack, p)

		ds, err := deps(p)
		if err != nil {
			return eris.Wrapf(err, "dependencies of %s", p)
		}
		ds = append([]string(nil), ds...)
		sort.Strings(ds)
		for _, d := range ds {
			if err := visit(d); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[p] = done
		order = append(order, p)
		return nil
	}

	for _, p := range projects {
		if err := visit(p); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Dependencies returns the dependencies declared by project's merged recipe.
func (b *Builder) Dependencies(project string) ([]string, error) {
	r, err := recipe.Load(b.ProjectDir(project), b.opts.Platform)
	if err != nil {
		return nil, eris.Wrapf(err, "project %s", project)
	}
	return recipe.Merge(r, b.opts.Platform).Dependencies, nil
}
