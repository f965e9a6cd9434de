package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(GenerateSecureSecret(), time.Hour)
	require.NoError(t, err)
	return i
}

func TestIssueAndValidate(t *testing.T) {
	i := newTestIssuer(t)
	token, err := i.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := i.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, "graphite", claims.Issuer)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, err := newTestIssuer(t).Issue("alice")
	require.NoError(t, err)

	_, err = newTestIssuer(t).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	i := newTestIssuer(t)
	token, err := i.Issue("alice")
	require.NoError(t, err)

	i.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = i.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	i := newTestIssuer(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Operator: "mallory"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = i.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer("c2hvcnQ=", time.Hour)
	assert.Error(t, err)
	_, err = NewIssuer("not base64!", time.Hour)
	assert.Error(t, err)

	_, err = newTestIssuer(t).Issue("")
	assert.Error(t, err)
}
