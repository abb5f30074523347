package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wooogler/swag/internal/model"
)

const (
	AccessTokenExpiry = 12 * time.Hour
	Issuer            = "swag"
)

// Claims identify an instructor. Replay, summary and export routes require them.
type Claims struct {
	InstructorID string `json:"instructorId"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	jwt.RegisteredClaims
}

func GenerateAccessToken(instructor *model.Instructor, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		InstructorID: instructor.ID,
		Email:        instructor.Email,
		Name:         instructor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   instructor.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateAccessToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(Issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.InstructorID != "" {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
