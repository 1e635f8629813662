package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vbilous/contactbook/internal/domain"
	"github.com/vbilous/contactbook/internal/token"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func newService(t *testing.T) *token.Service {
	t.Helper()
	svc, err := token.NewService(secret)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := token.NewService([]byte("too-short"))
	require.Error(t, err)
}

func TestIssueValidateRoundTrip(t *testing.T) {
	svc := newService(t)

	purposes := []token.Purpose{
		token.PurposeAccess,
		token.PurposeRefresh,
		token.PurposeVerifyEmail,
		token.PurposeResetPassword,
	}
	for _, purpose := range purposes {
		raw, err := svc.Issue("42", purpose, time.Minute)
		require.NoError(t, err)

		subject, err := svc.Validate(raw, purpose)
		require.NoError(t, err)
		require.Equal(t, "42", subject)
	}
}

func TestPurposesAreNotInterchangeable(t *testing.T) {
	svc := newService(t)

	raw, err := svc.Issue("42", token.PurposeRefresh, time.Minute)
	require.NoError(t, err)

	for _, other := range []token.Purpose{
		token.PurposeAccess,
		token.PurposeVerifyEmail,
		token.PurposeResetPassword,
	} {
		_, err := svc.Validate(raw, other)
		require.ErrorIs(t, err, domain.ErrInvalidToken)
	}
}

func TestValidateExpired(t *testing.T) {
	svc := newService(t)

	raw, err := svc.Issue("42", token.PurposeAccess, -5*time.Minute)
	require.NoError(t, err)

	_, err = svc.Validate(raw, token.PurposeAccess)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	svc := newService(t)
	other, err := token.NewService([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	raw, err := other.Issue("42", token.PurposeAccess, time.Minute)
	require.NoError(t, err)

	_, err = svc.Validate(raw, token.PurposeAccess)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	svc := newService(t)
	_, err := svc.Validate("not-a-token", token.PurposeAccess)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}
