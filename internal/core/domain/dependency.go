package domain

import "sort"

// PathSet is a set of filesystem paths, interned to keep repeated paths cheap.
type PathSet map[InternedString]struct{}

// NewPathSet creates a PathSet from the given paths.
func NewPathSet(paths ...string) PathSet {
	s := make(PathSet, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add inserts a path into the set.
func (s PathSet) Add(path string) {
	s[NewInternedString(path)] = struct{}{}
}

// Has reports whether the set contains the given path.
func (s PathSet) Has(path string) bool {
	_, ok := s[NewInternedString(path)]
	return ok
}

// Union merges the other set into this one.
func (s PathSet) Union(other PathSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Sorted returns the paths as a sorted string slice.
func (s PathSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

// DependencySet describes everything a unit of work observed on the
// filesystem: files it read, directories whose listing it read, and paths it
// probed but did not find. The absence of a missing path is itself a
// dependency, since creating the file must invalidate the unit.
type DependencySet struct {
	Files   PathSet
	Dirs    PathSet
	Missing PathSet
}

// NewDependencySet creates an empty DependencySet.
func NewDependencySet() *DependencySet {
	return &DependencySet{
		Files:   make(PathSet),
		Dirs:    make(PathSet),
		Missing: make(PathSet),
	}
}

// Merge unions the other dependency set into this one.
func (d *DependencySet) Merge(other *DependencySet) {
	if other == nil {
		return
	}
	d.Files.Union(other.Files)
	d.Dirs.Union(other.Dirs)
	d.Missing.Union(other.Missing)
}

// Len returns the total number of tracked paths.
func (d *DependencySet) Len() int {
	return len(d.Files) + len(d.Dirs) + len(d.Missing)
}

// Empty reports whether the set tracks no paths at all.
func (d *DependencySet) Empty() bool {
	return d.Len() == 0
}
