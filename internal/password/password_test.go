package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scribeworks/scribe-auth/internal/password"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := password.Hash("correct horse")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := password.Verify("correct horse", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = password.Verify("wrong", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	first, err := password.Hash("correct horse")
	require.NoError(t, err)
	second, err := password.Hash("correct horse")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, hash := range []string{"", "plain", "$bcrypt$whatever", "$argon2id$v=19$m=bad$salt$sum"} {
		_, err := password.Verify("anything", hash)
		require.Error(t, err)
	}
}
