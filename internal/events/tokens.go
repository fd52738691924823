package events

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService mints short-lived capability tokens scoped to a single
// channel (a series' external id, or "*" for every channel), repurposing
// the teacher's per-user JWT session tokens for a per-channel capability
// instead — this domain has no user accounts to authenticate.
type TokenService struct {
	Secret   []byte
	Issuer   string
	Duration time.Duration
}

type Claims struct {
	Channel string `json:"channel"`
	jwt.RegisteredClaims
}

func (ts TokenService) Sign(channel string) (string, time.Time, error) {
	exp := time.Now().Add(ts.Duration)
	claims := Claims{
		Channel: channel,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.Issuer,
			Subject:   channel,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign capability token: %w", err)
	}
	return s, exp, nil
}

func (ts TokenService) Parse(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse capability token: %w", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid capability token")
	}
	return claims, nil
}
