// Package security validates bearer tokens and extracts the acting reviewer.
package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/memberhub/approval-workflow/internal/domain/workflow"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrUnknownRole  = errors.New("token carries no workflow role")
)

// Claims identify the acting user. Role is one of the workflow roles.
type Claims struct {
	UserID int64         `json:"user_id"`
	Role   workflow.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator parses bearer tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// TokenManager validates HS256 tokens
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ TokenValidator = (*TokenManager)(nil)

// NewTokenManager creates an HS256 validator. An empty issuer accepts any issuer.
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// IssueToken signs a token for a reviewer. Production tokens come from the
// identity provider; this exists for local tooling and tests.
func (m *TokenManager) IssueToken(userID int64, role workflow.Role, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 && claims.Subject != "" {
		uid, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return nil, ErrInvalidToken
		}
		claims.UserID = uid
	}
	if claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	if !claims.Role.IsValid() {
		return nil, ErrUnknownRole
	}
	return claims, nil
}
