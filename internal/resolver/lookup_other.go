//go:build !windows

package resolver

import "context"

// systemLookup on platforms without an app-package model: nothing is a
// packaged process, so every candidate resolves immediately to no identity.
type systemLookup struct{}

// NewSystemLookup returns the platform package-identity lookup.
func NewSystemLookup() Lookup {
	return systemLookup{}
}

func (systemLookup) PackageIdentity(_ context.Context, _ int) (string, error) {
	return "", nil
}
