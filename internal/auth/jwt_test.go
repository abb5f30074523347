package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooogler/swag/internal/model"
)

const secret = "test-secret"

func TestAccessToken_RoundTrip(t *testing.T) {
	inst := &model.Instructor{ID: "inst-1", Email: "prof@example.edu", Name: "Prof"}
	token, err := GenerateAccessToken(inst, secret)
	require.NoError(t, err)

	claims, err := ValidateAccessToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "inst-1", claims.InstructorID)
	assert.Equal(t, "prof@example.edu", claims.Email)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(&model.Instructor{ID: "inst-1"}, secret)
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, "other")
	assert.Error(t, err)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	claims := Claims{
		InstructorID: "inst-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    Issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, secret)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateAccessToken_RequiresInstructor(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, secret)
	assert.Error(t, err)
}
