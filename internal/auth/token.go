package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medmentor/backend/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// IssueToken signs an HS256 token whose subject is userID.
func IssueToken(secret []byte, userID string, ttl time.Duration) (models.TokenResponse, error) {
	if userID == "" {
		return models.TokenResponse{}, fmt.Errorf("user id required")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return models.TokenResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return models.TokenResponse{Token: signed, ExpiresAt: exp.UTC()}, nil
}

// ParseToken verifies signature and expiry and returns the caller identity.
func ParseToken(secret []byte, raw string) (models.Principal, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return models.Principal{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return models.Principal{}, ErrInvalidToken
	}
	p := models.Principal{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return p, nil
}
