package password_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vbilous/contactbook/internal/password"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := password.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, encoded, "$argon2id$")

	ok, err := password.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = password.Verify("wrong password", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	first, err := password.Hash("secret123")
	require.NoError(t, err)
	second, err := password.Hash("secret123")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$not-base64!$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$c2FsdA",
	} {
		_, err := password.Verify("secret123", encoded)
		require.ErrorIs(t, err, password.ErrMalformedHash, "input %q", encoded)
	}
}
