package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestDemo_StableUID(t *testing.T) {
	a := Demo("Ada@Example.com ", "")
	b := Demo("ada@example.com", "Ada L.")

	require.Equal(t, a.UID, b.UID)
	require.Equal(t, "ada@example.com", a.Email)
	require.Equal(t, "ada", a.DisplayName)
	require.Equal(t, "Ada L.", b.DisplayName)
	require.NotEqual(t, a.UID, Demo("grace@example.com", "").UID)
	require.False(t, a.IsGuest())
	require.True(t, Identity{}.IsGuest())
}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	id := Demo("ada@example.com", "Ada")
	token, expiresAt, err := issuer.Issue(id)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	parsed, err := issuer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestIssuer_RejectsBadTokens(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)

	token, _, err := other.Issue(Demo("ada@example.com", ""))
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Expired(t *testing.T) {
	issuer, err := NewIssuer("secret", time.Minute)
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := issuer.Issue(Demo("ada@example.com", ""))
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)
}
