package websocket

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("relay: token missing or malformed")

// TokenSource yields the auth token presented to the relay. It is re-read on
// every TryConnect.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource with a fixed value.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// ValidateToken only checks the coarse shape: three dot separated segments.
// The signature is the relay's business.
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty", ErrTokenInvalid)
	}
	if n := strings.Count(token, ".") + 1; n != 3 {
		return fmt.Errorf("%w: %d segments", ErrTokenInvalid, n)
	}
	return nil
}

// TokenExpiry reads the exp claim without verifying the token.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
