package auth

import (
	"slices"
	"strconv"
	"time"

	"github.com/go-pkgz/auth/v2/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/models"
)

// TokenService issues and verifies HS256 access tokens. The subject is the
// user id.
type TokenService struct {
	jwt      *token.Service
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokenService(secret, issuer, audience string, ttl time.Duration) *TokenService {
	svc := token.NewService(token.Opts{
		SecretReader: token.SecretFunc(func(aud string) (string, error) {
			return secret, nil
		}),
		TokenDuration: ttl,
		Issuer:        issuer,
	})
	return &TokenService{jwt: svc, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

func (t *TokenService) TTL() time.Duration { return t.ttl }

// Issue returns a signed token for user and its expiry.
func (t *TokenService) Issue(user *models.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	id := strconv.FormatUint(uint64(user.ID), 10)

	claims := token.Claims{
		User: &token.User{
			ID:    id,
			Name:  user.FullName(),
			Email: user.Email,
			Attributes: map[string]interface{}{
				"role": user.Role,
			},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    t.issuer,
			Audience:  []string{t.audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := t.jwt.Token(claims)
	if err != nil {
		return "", time.Time{}, apperr.Internal("failed to generate token", err)
	}
	return signed, exp, nil
}

// Verify returns the user id carried by raw. Every failure is the same
// generic Unauthorized error.
func (t *TokenService) Verify(raw string) (uint, error) {
	if raw == "" {
		return 0, apperr.Unauthorized()
	}
	claims, err := t.jwt.Parse(raw)
	if err != nil {
		return 0, apperr.Unauthorized()
	}
	if claims.ExpiresAt == nil || !t.now().Before(claims.ExpiresAt.Time) {
		return 0, apperr.Unauthorized()
	}
	if claims.Issuer != t.issuer || !slices.Contains(claims.Audience, t.audience) {
		return 0, apperr.Unauthorized()
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Unauthorized()
	}
	return uint(id), nil
}
