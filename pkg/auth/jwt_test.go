package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "hospital-intake")
	user := uuid.New()

	token, err := svc.GenerateAccessToken(user, "ward_admin", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user, claims.UserID)
	assert.Equal(t, "ward_admin", claims.Role)
}

func TestJWTRejects(t *testing.T) {
	svc := NewJWTService("test-secret", "hospital-intake")
	user := uuid.New()

	expired, err := svc.GenerateAccessToken(user, "", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	foreign, err := NewJWTService("other-secret", "hospital-intake").GenerateAccessToken(user, "", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	otherIssuer, err := NewJWTService("test-secret", "someone-else").GenerateAccessToken(user, "", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(otherIssuer)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}
