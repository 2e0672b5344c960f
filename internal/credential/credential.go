// Package credential verifies operator credentials against the policy
// store. Every error path fails closed: a verifier that cannot consult its
// backend reports a mismatch, never an error that could leak through the
// authorization gate.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/applockd/applockd/internal/policy"
)

const (
	settingPasswordHash = "master_password_hash"
	settingTOTPSecret   = "totp_secret"
)

// ErrNoCredential is returned by Set-side helpers when no master password
// has been configured yet.
var ErrNoCredential = errors.New("no master credential configured")

// Verifier checks submitted credentials.
type Verifier struct {
	store  *policy.Store
	logger *slog.Logger
}

// NewVerifier builds a verifier over the policy store.
func NewVerifier(store *policy.Store, logger *slog.Logger) *Verifier {
	return &Verifier{store: store, logger: logger}
}

// Verify checks a candidate password. When a TOTP secret is enrolled the
// candidate must carry the current code appended after a colon
// ("password:123456"). Any backend failure verifies false.
func (v *Verifier) Verify(ctx context.Context, candidate string) bool {
	hash, err := v.store.Setting(ctx, settingPasswordHash)
	if err != nil {
		if !errors.Is(err, policy.ErrNotFound) {
			v.logger.Error("credential backend unavailable, failing closed", "error", err)
		}
		return false
	}

	password := candidate
	code := ""
	secret, err := v.store.Setting(ctx, settingTOTPSecret)
	switch {
	case err == nil:
		i := strings.LastIndexByte(candidate, ':')
		if i < 0 {
			return false
		}
		password, code = candidate[:i], candidate[i+1:]
	case errors.Is(err, policy.ErrNotFound):
		// No second factor enrolled.
	default:
		v.logger.Error("credential backend unavailable, failing closed", "error", err)
		return false
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return false
	}
	if secret != "" && !totp.Validate(code, secret) {
		return false
	}
	return true
}

// HasCredential reports whether a master password has been set.
func (v *Verifier) HasCredential(ctx context.Context) bool {
	_, err := v.store.Setting(ctx, settingPasswordHash)
	return err == nil
}

// SetPassword hashes and stores the master password.
func (v *Verifier) SetPassword(ctx context.Context, password string) error {
	if len(password) < 4 {
		return fmt.Errorf("password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return v.store.SetSetting(ctx, settingPasswordHash, string(hash))
}

// EnrollTOTP generates, stores and returns a new TOTP secret. A master
// password must exist first so the second factor cannot be the only factor.
func (v *Verifier) EnrollTOTP(ctx context.Context) (string, error) {
	if !v.HasCredential(ctx) {
		return "", ErrNoCredential
	}
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	secret := base32.StdEncoding.EncodeToString(raw)
	if err := v.store.SetSetting(ctx, settingTOTPSecret, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// TOTPURI formats the otpauth:// enrollment URI for authenticator apps.
func TOTPURI(secret string) string {
	return fmt.Sprintf("otpauth://totp/applockd?secret=%s&issuer=applockd", secret)
}
