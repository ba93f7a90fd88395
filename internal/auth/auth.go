// Package auth gates protected routes behind a bearer token. Verification
// is pluggable through the Verifier interface.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/instant-tutor/backend/pkg/config"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Principal is the identity attached to a verified token.
type Principal struct {
	UserID string
	Method string
}

// Verifier decides whether a bearer token is acceptable.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// StaticVerifier accepts a fixed set of configured tokens. With no tokens
// configured every request is rejected.
type StaticVerifier struct {
	tokens [][]byte
}

func NewStaticVerifier(tokens []string) *StaticVerifier {
	v := &StaticVerifier{}
	for _, t := range tokens {
		if t != "" {
			v.tokens = append(v.tokens, []byte(t))
		}
	}
	return v
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	candidate := []byte(token)
	matched := 0
	for _, t := range v.tokens {
		matched |= subtle.ConstantTimeCompare(candidate, t)
	}
	if matched != 1 {
		return nil, ErrInvalidToken
	}

	return &Principal{Method: "static"}, nil
}

// Claims are the JWT claims understood by JWTVerifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}

// JWTVerifier validates HS256 tokens. Expiry is enforced by the parser.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}

	return &Principal{UserID: userID, Method: "jwt"}, nil
}

// SignToken issues an HS256 token for userID. Used by tests and the probe
// command.
func SignToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// NewVerifier builds the verifier selected by cfg.Mode.
func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Mode {
	case "", "static":
		return NewStaticVerifier(cfg.Tokens), nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, errors.New("jwt secret is not configured")
		}
		return NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
