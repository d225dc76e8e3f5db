package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeMigrations is the only scope the admin API accepts
const ScopeMigrations = "migrations"

// MinSecretLength is the shortest HS256 signing secret the admin API accepts
const MinSecretLength = 32

var errInvalidClaims = errors.New("invalid token claims")

// IssueToken signs an HS256 operator token for the admin API
func IssueToken(secret, subject string, ttl time.Duration) (string, time.Time, error) {
	if err := checkSecret(secret); err != nil {
		return "", time.Time{}, err
	}
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("token subject is required")
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"scope": ScopeMigrations,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func checkSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	return nil
}

// parseToken validates signature, expiry and scope and returns the subject
func parseToken(secret, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errInvalidClaims
	}

	if scope, _ := claims["scope"].(string); scope != ScopeMigrations {
		return "", errInvalidClaims
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", errInvalidClaims
	}
	return subject, nil
}
