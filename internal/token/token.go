// Package token issues and validates the signed, purpose-scoped tokens used
// across the authentication lifecycle.
package token

import (
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/vbilous/contactbook/internal/domain"
)

// Purpose namespaces a token to exactly one operation. Tokens of different
// purposes are never interchangeable even when structurally identical.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
)

const issuer = "contactbook"

// Service signs and validates JWTs with a single HS256 key fixed at
// construction time. Key misconfiguration fails the constructor, so Issue
// cannot fail per-request on signer state.
type Service struct {
	signer gojose.Signer
	secret []byte
}

// NewService builds the signer once from the configured secret.
func NewService(secret []byte) (*Service, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret too short: %d bytes", len(secret))
	}
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}
	return &Service{signer: signer, secret: secret}, nil
}

type purposeClaims struct {
	Purpose Purpose `json:"purpose"`
}

// Issue produces a signed token for the subject, bound to one purpose and
// valid for ttl.
func (s *Service) Issue(subject string, purpose Purpose, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}
	raw, err := gojwt.Signed(s.signer).Claims(std).Claims(purposeClaims{Purpose: purpose}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return raw, nil
}

// Validate verifies signature, purpose, and expiry, returning the subject.
// Any mismatch is total rejection with domain.ErrInvalidToken; no partial
// validation results are exposed.
func (s *Service) Validate(raw string, expected Purpose) (string, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return "", domain.ErrInvalidToken
	}

	var std gojwt.Claims
	var custom purposeClaims
	if err := parsed.Claims(s.secret, &std, &custom); err != nil {
		return "", domain.ErrInvalidToken
	}
	if custom.Purpose != expected {
		return "", domain.ErrInvalidToken
	}
	if err := std.Validate(gojwt.Expected{Issuer: issuer, Time: time.Now().UTC()}); err != nil {
		return "", domain.ErrInvalidToken
	}
	return std.Subject, nil
}
