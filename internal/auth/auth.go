// Package auth issues and verifies RS256 access tokens. Services verify
// tokens locally against the identity service's public key, so no request
// ever blocks on a central session store.
package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/procat/backend/internal/apperr"
)

// Roles known to the platform.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Claims is the token payload.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs access tokens with an RSA private key.
type Issuer struct {
	key *rsa.PrivateKey
	ttl time.Duration
}

// NewIssuer parses a PEM-encoded RSA private key.
func NewIssuer(privateKeyPEM string, ttl time.Duration) (*Issuer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &Issuer{key: key, ttl: ttl}, nil
}

// Issue signs a token for the given subject.
func (i *Issuer) Issue(userID, username, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
}

// Verifier checks tokens against the identity service's public key.
type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifier parses a PEM-encoded RSA public key.
func NewVerifier(publicKeyPEM string) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return &Verifier{key: key}, nil
}

// Verify parses and validates a token, returning its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.key, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, "invalid token", err)
	}
	if !token.Valid {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid token")
	}
	return claims, nil
}
