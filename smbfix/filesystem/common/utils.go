package common

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// PathUtils provides path manipulation utilities used across filesystem packages
type PathUtils struct{}

// NewPathUtils creates a new PathUtils instance
func NewPathUtils() *PathUtils {
	return &PathUtils{}
}

// NormalizePath returns an absolute, cleaned path
func (pu *PathUtils) NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// IsSubpath checks if child is a subpath of parent
func (pu *PathUtils) IsSubpath(parent, child string) bool {
	parent = pu.NormalizePath(parent)
	child = pu.NormalizePath(child)

	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// CheckDisjoint fails when two roots are equal or nested; one pass would
// rename entries underneath the other.
func (pu *PathUtils) CheckDisjoint(roots []string) error {
	norm := make([]string, len(roots))
	for i, r := range roots {
		norm[i] = pu.NormalizePath(r)
	}
	sorted := append([]string(nil), norm...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return fmt.Errorf("%w: %s given twice", ErrOverlappingRoots, sorted[i])
		}
	}
	for i, a := range norm {
		for j, b := range norm {
			if i != j && pu.IsSubpath(a, b) {
				return fmt.Errorf("%w: %s is inside %s", ErrOverlappingRoots, b, a)
			}
		}
	}
	return nil
}
