// Package vpath normalizes filesystem paths into the canonical cache/predictor
// key used everywhere else in Quark.
package vpath

import "path"

// VirtualPath is a normalized, root-relative, POSIX-style path. It is used as
// the cache key and as the predictor's symbol.
type VirtualPath = string

// Normalize collapses "." and ".." segments lexically (never touching the
// filesystem) and strips any leading separator, so "/a/b", "a/b" and "./a/b"
// all map to the same VirtualPath. It is deterministic and pure.
func Normalize(p string) VirtualPath {
	if p == "" {
		return "."
	}

	cleaned := path.Clean(p)
	for len(cleaned) > 0 && cleaned[0] == '/' {
		cleaned = cleaned[1:]
	}
	if cleaned == "" {
		cleaned = "."
	}
	return cleaned
}
