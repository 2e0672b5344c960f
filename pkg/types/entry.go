package types

// EntryKind distinguishes how a protected application is identified.
type EntryKind string

const (
	// EntryKindExecutable matches a process by its backing executable path.
	EntryKindExecutable EntryKind = "exe"
	// EntryKindPackage matches a packaged application by its package
	// identity (resolved through the host process, see resolver).
	EntryKindPackage EntryKind = "package"
)

// ProtectedEntry is one configured application subject to authorization.
// Identity is the unique key: a normalized executable path for exe entries,
// a package family string for package entries.
type ProtectedEntry struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name"`
	Kind        EntryKind `json:"kind"`
	Enabled     bool      `json:"enabled"`
}
