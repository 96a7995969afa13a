package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
)

// DefaultTokenTTL is how long a minted token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Tokens mints and verifies HS256 bearer tokens. Nothing is stored server
// side: a token is valid while its signature checks out and exp is ahead.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a signer for secret. A zero ttl means DefaultTokenTTL.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used for iat/exp and for verification.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	clone := *t
	clone.now = now
	return &clone
}

// Mint signs a token carrying userID. It returns the token and its expiry.
func (t *Tokens) Mint(userID string) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(t.ttl)
	claims := &api.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// An empty token is Unauthenticated; every other failure is Forbidden.
func (t *Tokens) Verify(raw string) (api.Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return api.Claims{}, apperr.New(apperr.CodeUnauthenticated, "Not authorized, no token")
	}

	var claims api.Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return api.Claims{}, mapJWTError(err)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return api.Claims{}, apperr.New(apperr.CodeForbidden, "Token has no subject")
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(apperr.CodeForbidden, "Token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperr.Wrap(apperr.CodeForbidden, "Token signature is invalid", err)
	default:
		return apperr.Wrap(apperr.CodeForbidden, "Token is invalid", err)
	}
}
