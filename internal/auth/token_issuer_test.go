package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

const testSigningSecret = "unit-test-signing-secret"

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "archive-terminal",
		Audience:      "archive-api",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuedAt := time.Date(2026, time.June, 14, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(fixedClock(issuedAt))

	token, expiresIn, err := issuer.IssueSessionToken(context.Background(), "session-abc")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds: %d", expiresIn)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected a compact JWT, got %q", token)
	}

	sessionID, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error validating token: %v", err)
	}
	if sessionID != "session-abc" {
		t.Fatalf("unexpected session identifier: %q", sessionID)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, time.June, 14, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(fixedClock(issuedAt))

	token, _, err := issuer.IssueSessionToken(context.Background(), "session-abc")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	later := newTestIssuer(fixedClock(issuedAt.Add(31 * time.Minute)))
	if _, err := later.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuedAt := time.Date(2026, time.June, 14, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(fixedClock(issuedAt))

	token, _, err := issuer.IssueSessionToken(context.Background(), "session-abc")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("a-different-secret"),
		Issuer:        "archive-terminal",
		Audience:      "archive-api",
		Clock:         fixedClock(issuedAt),
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	issuedAt := time.Date(2026, time.June, 14, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(fixedClock(issuedAt))

	token, _, err := issuer.IssueSessionToken(context.Background(), "session-abc")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        "archive-terminal",
		Audience:      "another-service",
		Clock:         fixedClock(issuedAt),
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected token with foreign audience to be rejected")
	}
}

func TestIssueRequiresSessionIdentifier(t *testing.T) {
	issuer := newTestIssuer(fixedClock(time.Now()))

	if _, _, err := issuer.IssueSessionToken(context.Background(), ""); err == nil {
		t.Fatalf("expected an error for an empty session identifier")
	}
}

func TestIssueRequiresSigningSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		Issuer:   "archive-terminal",
		Audience: "archive-api",
	})

	if _, _, err := issuer.IssueSessionToken(context.Background(), "session-abc"); err == nil {
		t.Fatalf("expected an error without a signing secret")
	}
}

func TestValidateRejectsMalformedToken(t *testing.T) {
	issuer := newTestIssuer(fixedClock(time.Now()))

	if _, err := issuer.ValidateToken("not-a-token"); err == nil {
		t.Fatalf("expected a malformed token to be rejected")
	}
}
