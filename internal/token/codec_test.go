package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scribeworks/scribe-auth/internal/domain"
	"github.com/scribeworks/scribe-auth/internal/token"
)

func newTestCodec(accessTTL, refreshTTL time.Duration) *token.Codec {
	return token.NewCodec("access-secret-0123456789abcdefghij", "refresh-secret-0123456789abcdefghij", accessTTL, refreshTTL)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(time.Minute, time.Hour)
	claims := domain.Claims{UserID: 42, DeviceID: "device-1"}

	for _, class := range []token.Class{token.ClassAccess, token.ClassRefresh} {
		signed, err := codec.Issue(claims, class)
		require.NoError(t, err)
		require.NotEmpty(t, signed)

		verified, err := codec.Verify(signed, class)
		require.NoError(t, err)
		require.Equal(t, int64(42), verified.UserID)
		require.Equal(t, "device-1", verified.DeviceID)
		require.False(t, verified.ExpiresAt.IsZero())
		require.True(t, verified.ExpiresAt.After(verified.IssuedAt))
	}
}

func TestCodecRejectsWrongClass(t *testing.T) {
	codec := newTestCodec(time.Minute, time.Hour)
	claims := domain.Claims{UserID: 42, DeviceID: "device-1"}

	access, err := codec.Issue(claims, token.ClassAccess)
	require.NoError(t, err)

	_, err = codec.Verify(access, token.ClassRefresh)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	refresh, err := codec.Issue(claims, token.ClassRefresh)
	require.NoError(t, err)

	_, err = codec.Verify(refresh, token.ClassAccess)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCodecRejectsTamperedSignature(t *testing.T) {
	codec := newTestCodec(time.Minute, time.Hour)
	signed, err := codec.Issue(domain.Claims{UserID: 7, DeviceID: "d"}, token.ClassAccess)
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = codec.Verify(tampered, token.ClassAccess)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCodecRejectsMalformed(t *testing.T) {
	codec := newTestCodec(time.Minute, time.Hour)

	for _, raw := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		_, err := codec.Verify(raw, token.ClassAccess)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}
}

func TestCodecRejectsExpired(t *testing.T) {
	codec := newTestCodec(-time.Minute, time.Hour)
	signed, err := codec.Issue(domain.Claims{UserID: 7, DeviceID: "d"}, token.ClassAccess)
	require.NoError(t, err)

	_, err = codec.Verify(signed, token.ClassAccess)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
