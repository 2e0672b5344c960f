package credential

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/applockd/applockd/internal/logging"
	"github.com/applockd/applockd/internal/policy"
)

func newTestVerifier(t *testing.T) (*Verifier, *policy.Store) {
	t.Helper()
	s, err := policy.Open(filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewVerifier(s, logging.Discard()), s
}

func TestVerifyPassword(t *testing.T) {
	v, _ := newTestVerifier(t)
	ctx := context.Background()

	if v.HasCredential(ctx) {
		t.Fatalf("fresh store must have no credential")
	}
	if err := v.SetPassword(ctx, "hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if !v.HasCredential(ctx) {
		t.Fatalf("HasCredential = false after SetPassword")
	}

	if !v.Verify(ctx, "hunter2") {
		t.Fatalf("correct password rejected")
	}
	if v.Verify(ctx, "hunter3") {
		t.Fatalf("wrong password accepted")
	}
	if v.Verify(ctx, "") {
		t.Fatalf("empty password accepted")
	}
}

func TestVerifyFailsClosedWithoutCredential(t *testing.T) {
	v, _ := newTestVerifier(t)
	if v.Verify(context.Background(), "anything") {
		t.Fatalf("no configured credential must verify false")
	}
}

func TestVerifyFailsClosedOnBackendError(t *testing.T) {
	v, s := newTestVerifier(t)
	ctx := context.Background()
	if err := v.SetPassword(ctx, "hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	_ = s.Close()
	if v.Verify(ctx, "hunter2") {
		t.Fatalf("backend failure must verify false, never error open")
	}
}

func TestSetPasswordRejectsTooShort(t *testing.T) {
	v, _ := newTestVerifier(t)
	if err := v.SetPassword(context.Background(), "abc"); err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestEnrollTOTPRequiresPasswordFirst(t *testing.T) {
	v, _ := newTestVerifier(t)
	if _, err := v.EnrollTOTP(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}

func TestVerifyWithTOTP(t *testing.T) {
	v, _ := newTestVerifier(t)
	ctx := context.Background()

	if err := v.SetPassword(ctx, "hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	secret, err := v.EnrollTOTP(ctx)
	if err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	if !v.Verify(ctx, "hunter2:"+code) {
		t.Fatalf("password+code rejected")
	}
	if v.Verify(ctx, "hunter2") {
		t.Fatalf("password without code must fail once totp is enrolled")
	}
	if v.Verify(ctx, "hunter2:000000") {
		t.Fatalf("wrong code accepted")
	}
	if v.Verify(ctx, "wrong:"+code) {
		t.Fatalf("wrong password with valid code accepted")
	}
}

func TestTOTPURI(t *testing.T) {
	uri := TOTPURI("SECRET123")
	if !strings.HasPrefix(uri, "otpauth://totp/") || !strings.Contains(uri, "secret=SECRET123") {
		t.Fatalf("uri = %q", uri)
	}
}
