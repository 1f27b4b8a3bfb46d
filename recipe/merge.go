package recipe

import (
	"maps"
	"slices"
)

// Merge returns the effective recipe for platform p. Each field set in the
// override block for p replaces the base field as a whole; fields the block
// does not set keep their base value. Without a block for p the result equals
// base. The result has no platform blocks and shares no memory with base.
func Merge(base *Recipe, p Platform) *Recipe {
	r := base.Clone()
	r.Platforms = nil

	o := base.Platforms[p]
	if o == nil {
		return r
	}
	if o.Version != nil {
		r.Version = *o.Version
	}
	if o.Downloads != nil {
		r.Downloads = slices.Clone(o.Downloads)
	}
	if o.License != nil {
		r.License = *o.License
	}
	if o.Environment != nil {
		r.Environment = maps.Clone(o.Environment)
	}
	if o.Commands != nil {
		r.Commands = slices.Clone(o.Commands)
	}
	if o.Manifest != nil {
		r.Manifest = slices.Clone(o.Manifest)
	}
	if o.Variables != nil {
		r.Variables = maps.Clone(o.Variables)
	}
	if o.WorkingDir != nil {
		r.WorkingDir = *o.WorkingDir
	}
	if o.Symlinks != nil {
		r.Symlinks = clonePairs(o.Symlinks)
	}
	if o.Checksums != nil {
		r.Checksums = maps.Clone(o.Checksums)
	}
	return r
}

// Clone returns a deep copy of r. Override blocks are shared.
func (r *Recipe) Clone() *Recipe {
	return &Recipe{
		Version:      r.Version,
		Downloads:    slices.Clone(r.Downloads),
		License:      r.License,
		Dependencies: slices.Clone(r.Dependencies),
		Environment:  maps.Clone(r.Environment),
		Commands:     slices.Clone(r.Commands),
		Manifest:     slices.Clone(r.Manifest),
		Variables:    maps.Clone(r.Variables),
		WorkingDir:   r.WorkingDir,
		Symlinks:     clonePairs(r.Symlinks),
		Checksums:    maps.Clone(r.Checksums),
		Platforms:    maps.Clone(r.Platforms),
	}
}

func clonePairs(pairs [][]string) [][]string {
	if pairs == nil {
		return nil
	}
	out := make([][]string, len(pairs))
	for i, p := range pairs {
		out[i] = slices.Clone(p)
	}
	return out
}
