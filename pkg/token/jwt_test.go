package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1)

	signed, claims, err := m.IssueVisitorToken("", "ko")
	require.NoError(t, err)
	require.NotEmpty(t, claims.VisitorID)

	got, err := m.VerifyToken(signed)
	require.NoError(t, err)
	assert.Equal(t, claims.VisitorID, got.VisitorID)
	assert.Equal(t, "ko", got.Language)
}

func TestIssueKeepsExistingVisitor(t *testing.T) {
	m := NewJWTManager("secret", 1)
	signed, _, err := m.IssueVisitorToken("visitor-1", "en")
	require.NoError(t, err)

	got, err := m.VerifyToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "visitor-1", got.VisitorID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, _, err := NewJWTManager("secret", 1).IssueVisitorToken("", "")
	require.NoError(t, err)

	_, err = NewJWTManager("other", 1).VerifyToken(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 1)
	claims := VisitorClaims{
		VisitorID: "v1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.VerifyToken(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingVisitor(t *testing.T) {
	m := NewJWTManager("secret", 1)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, VisitorClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.VerifyToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
