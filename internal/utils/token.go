package utils

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenIssuer mints session tokens. The token is a signed JWT so it is
// unforgeable and self-describing, but the session registry treats it as an
// opaque secret: validity is decided by the stored session row and a
// byte-exact comparison, never by re-parsing the token.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

type sessionClaims struct {
	Login string `json:"login"`
	jwt.StandardClaims
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns a fresh token for the login plus its expiry instant.
func (i *TokenIssuer) Issue(login string) (string, time.Time, error) {
	now := time.Now()
	expireAt := now.Add(i.ttl)

	claims := sessionClaims{
		Login: login,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expireAt.Unix(),
			IssuedAt:  now.Unix(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expireAt, nil
}
