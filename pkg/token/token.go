// Package token issues and verifies the HS256 bearer tokens that
// authenticate every WebSocket message and account API response.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quizarena/quizarena/pkg/model"
)

// ErrInvalidToken is returned for any malformed, unsigned, expired, or
// otherwise unacceptable token. Verification failures are deliberately
// collapsed into one generic error so clients learn nothing about why.
var ErrInvalidToken = errors.New("token: invalid or expired token")

// Claims carries the identity a token proves: the registered claims
// (subject = user id, expiry) plus the profile fields clients display.
type Claims struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for the given secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// NewVerifierWithClock creates a Verifier with a custom clock, for tests.
func NewVerifierWithClock(secret []byte, now func() time.Time) *Verifier {
	return &Verifier{secret: secret, now: now}
}

// Issue signs a token for the user, valid for ttl from now.
func (v *Verifier) Issue(user *model.User, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Username: user.Username,
		Avatar:   user.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a raw token and extracts the identity it
// proves. Only HS256 is accepted and the expiry claim is mandatory.
func (v *Verifier) Verify(raw string) (model.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return model.Identity{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return model.Identity{}, ErrInvalidToken
	}

	return model.Identity{
		UserID:   userID,
		Username: claims.Username,
		Avatar:   claims.Avatar,
	}, nil
}
