package policy

import (
	"context"
	"testing"

	"github.com/applockd/applockd/internal/logging"
	"github.com/applockd/applockd/pkg/types"
)

func TestViewMatchesExactAndPattern(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, types.ProtectedEntry{Identity: "/opt/apps/firefox", Kind: types.EntryKindExecutable, Enabled: true})
	mustAdd(t, s, types.ProtectedEntry{Identity: "/opt/games/*", Kind: types.EntryKindExecutable, Enabled: true})
	mustAdd(t, s, types.ProtectedEntry{Identity: "Contoso.Notes_abc", Kind: types.EntryKindPackage, Enabled: true})
	mustAdd(t, s, types.ProtectedEntry{Identity: "/opt/apps/disabled", Kind: types.EntryKindExecutable, Enabled: false})

	v := NewView(ctx, s, logging.Discard())

	if _, ok := v.MatchExecutable("/opt/apps/firefox"); !ok {
		t.Fatalf("exact entry must match")
	}
	if _, ok := v.MatchExecutable("/opt/games/doom"); !ok {
		t.Fatalf("pattern entry must match")
	}
	if _, ok := v.MatchExecutable("/opt/games/mods/doom"); ok {
		t.Fatalf("single-star pattern must not cross separators")
	}
	if _, ok := v.MatchExecutable("/opt/apps/disabled"); ok {
		t.Fatalf("disabled entry must not match")
	}
	if _, ok := v.MatchPackage("contoso.notes_abc"); !ok {
		t.Fatalf("package entry must match its normalized identity")
	}
	if !v.HasPackageEntries() {
		t.Fatalf("HasPackageEntries = false, want true")
	}
}

func TestViewProtectionDisabledMatchesNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, types.ProtectedEntry{Identity: "/opt/apps/firefox", Kind: types.EntryKindExecutable, Enabled: true})
	if err := s.SetProtection(ctx, false); err != nil {
		t.Fatalf("SetProtection: %v", err)
	}

	v := NewView(ctx, s, logging.Discard())
	if v.ProtectionEnabled() {
		t.Fatalf("protection flag should be off")
	}
	if _, ok := v.MatchExecutable("/opt/apps/firefox"); ok {
		t.Fatalf("disabled protection must match nothing")
	}
	if v.HasPackageEntries() {
		t.Fatalf("HasPackageEntries must be false when protection is off")
	}
}

func TestViewRefreshPicksUpEdits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v := NewView(ctx, s, logging.Discard())
	if _, ok := v.MatchExecutable("/opt/apps/firefox"); ok {
		t.Fatalf("empty store must match nothing")
	}

	mustAdd(t, s, types.ProtectedEntry{Identity: "/opt/apps/firefox", Kind: types.EntryKindExecutable, Enabled: true})

	// The edit lands only on the next refresh boundary.
	if _, ok := v.MatchExecutable("/opt/apps/firefox"); ok {
		t.Fatalf("edit visible before refresh")
	}
	v.Refresh(ctx)
	if _, ok := v.MatchExecutable("/opt/apps/firefox"); !ok {
		t.Fatalf("edit not visible after refresh")
	}
}

func TestViewKeepsPreviousIndexOnBackendError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, types.ProtectedEntry{Identity: "/opt/apps/firefox", Kind: types.EntryKindExecutable, Enabled: true})
	v := NewView(ctx, s, logging.Discard())

	// Closing the store makes the next refresh fail; lookups keep serving
	// the last good index.
	_ = s.Close()
	v.Refresh(ctx)

	if _, ok := v.MatchExecutable("/opt/apps/firefox"); !ok {
		t.Fatalf("previous index must survive a failed refresh")
	}
}

func mustAdd(t *testing.T, s *Store, e types.ProtectedEntry) {
	t.Helper()
	if err := s.AddEntry(context.Background(), e); err != nil {
		t.Fatalf("AddEntry %s: %v", e.Identity, err)
	}
}
