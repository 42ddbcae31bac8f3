package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks bearer tokens issued by the identity service.
type TokenVerifier interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims represents JWT token claims
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ID resolves the numeric user id from user_id, falling back to sub.
func (c *Claims) ID() (int64, error) {
	raw := c.UserID
	if raw == "" {
		raw = c.Subject
	}
	if raw == "" {
		return 0, ErrMissingSubject
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMissingSubject
	}
	return id, nil
}

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrMissingSubject = errors.New("token has no user")
)

// JWTVerifier only verifies RS256 tokens; it never issues them.
type JWTVerifier struct {
	PublicKey *rsa.PublicKey
	Issuer    string
}

func NewJWTVerifier(publicKey *rsa.PublicKey, issuer string) *JWTVerifier {
	return &JWTVerifier{
		PublicKey: publicKey,
		Issuer:    issuer,
	}
}

// ValidateToken validates a JWT token and returns claims
func (v *JWTVerifier) ValidateToken(tokenString string) (*Claims, error) {
	if v.PublicKey == nil {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.PublicKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
