// Package paths provides normalization and navigation helpers for virtual
// filesystem paths.
//
// Virtual paths are always absolute, slash-separated, and rooted at "/".
// They are opaque keys to storage backends; all hierarchy reasoning in the
// tree goes through this package so every component agrees on the same
// canonical form.
package paths

import (
	"fmt"
	gopath "path"
	"strings"
)

// Root is the canonical path of the tree root.
const Root = "/"

// Normalize returns the canonical absolute form of p.
// Relative paths are resolved against base (which must itself be absolute).
func Normalize(base, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if !strings.HasPrefix(p, "/") {
		if base == "" {
			base = Root
		}
		p = gopath.Join(base, p)
	}
	cleaned := gopath.Clean(p)
	if !strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("path %q is not absolute after normalization", p)
	}
	for _, seg := range Segments(cleaned) {
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("path %q escapes the tree", p)
		}
	}
	return cleaned, nil
}

// MustNormalize is Normalize for paths known to be valid; it panics otherwise.
// Intended for package-level constants and tests.
func MustNormalize(p string) string {
	n, err := Normalize(Root, p)
	if err != nil {
		panic(err)
	}
	return n
}

// IsRoot reports whether p is the root path.
func IsRoot(p string) bool {
	return p == Root
}

// Parent returns the parent path of p. The parent of the root is the root.
func Parent(p string) string {
	if IsRoot(p) {
		return Root
	}
	return gopath.Dir(p)
}

// Base returns the last segment of p ("" for the root).
func Base(p string) string {
	if IsRoot(p) {
		return ""
	}
	return gopath.Base(p)
}

// Join joins a normalized directory path with a child segment.
func Join(dir, name string) string {
	return gopath.Join(dir, name)
}

// Segments splits a normalized path into its segments. The root has none.
func Segments(p string) []string {
	if IsRoot(p) {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// IsAncestor reports whether ancestor is a strict ancestor of p.
func IsAncestor(ancestor, p string) bool {
	if IsRoot(ancestor) {
		return !IsRoot(p)
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Rebase rewrites p, which must be at or under from, to the same position
// under to. Used when a directory is renamed.
func Rebase(p, from, to string) string {
	if p == from {
		return to
	}
	return to + strings.TrimPrefix(p, from)
}
