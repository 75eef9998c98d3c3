package token

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/authn/models"
	dErrors "bastion/pkg/domain-errors"
)

var signingKey = []byte(strings.Repeat("k", 32))

func newIssuer(t *testing.T) (*Issuer, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	issuer, err := New(signingKey, WithClock(mock))
	require.NoError(t, err)
	return issuer, mock
}

func testSession(now time.Time) *models.Session {
	return &models.Session{
		ID:          "sess-1",
		UserID:      "user-1",
		Roles:       []string{"analyst"},
		MFAVerified: true,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestNewRejectsShortKeys(t *testing.T) {
	_, err := New([]byte("short"))
	require.Error(t, err)
}

func TestIssueAndParse(t *testing.T) {
	issuer, mock := newIssuer(t)
	raw, err := issuer.Issue(testSession(mock.Now()))
	require.NoError(t, err)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, []string{"analyst"}, claims.Roles)
	assert.True(t, claims.MFAVerified)
	assert.True(t, mock.Now().Add(time.Hour).Equal(claims.ExpiresAt.Time))
	assert.NotEmpty(t, claims.ID)
}

func TestParseExpiredToken(t *testing.T) {
	issuer, mock := newIssuer(t)
	raw, err := issuer.Issue(testSession(mock.Now()))
	require.NoError(t, err)

	mock.Add(2 * time.Hour)
	_, err = issuer.Parse(raw)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSessionExpired))
}

func TestParseRejectsTamperedTokens(t *testing.T) {
	issuer, mock := newIssuer(t)

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not-a-token")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSessionInvalid))
	})

	t.Run("other key", func(t *testing.T) {
		other, err := New([]byte(strings.Repeat("x", 32)), WithClock(mock))
		require.NoError(t, err)
		raw, err := other.Issue(testSession(mock.Now()))
		require.NoError(t, err)
		_, err = issuer.Parse(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSessionInvalid))
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := New(signingKey, WithClock(mock), WithIssuer("elsewhere"))
		require.NoError(t, err)
		raw, err := other.Issue(testSession(mock.Now()))
		require.NoError(t, err)
		_, err = issuer.Parse(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSessionInvalid))
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			SessionID: "sess-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    defaultIssuer,
				ExpiresAt: jwt.NewNumericDate(mock.Now().Add(time.Hour)),
			},
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Parse(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSessionInvalid))
	})
}
