package policy

import (
	"path/filepath"
	"strings"
)

// NormalizeIdentity canonicalizes an executable path so that the same
// binary always yields the same identity string: symlinks resolved, path
// made absolute, separators forced to '/', case folded. Package identities
// are not paths and only get case folding.
func NormalizeIdentity(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	p = filepath.ToSlash(p)
	return strings.ToLower(p)
}

// NormalizePackageIdentity canonicalizes a package family string.
func NormalizePackageIdentity(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// globMeta reports whether the identity contains glob metacharacters and
// should be matched as a pattern rather than an exact key.
func globMeta(identity string) bool {
	return strings.ContainsAny(identity, "*?[{")
}
