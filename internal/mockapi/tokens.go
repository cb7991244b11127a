package mockapi

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfeidau/fitout/internal/models"
)

const tokenIssuer = "fitout-mockapi"

var (
	errTokenExpired = errors.New("access token expired")
	errTokenInvalid = errors.New("access token invalid")
)

// accessClaims are carried in the access cookie. Gen must match the session's
// AccessGen for the token to be accepted.
type accessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Gen       int    `json:"gen"`
}

type tokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// issue creates a signed access token for session.
func (t *tokenSigner) issue(session *models.Session) (string, error) {
	now := time.Now()
	claims := &accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			Issuer:    tokenIssuer,
		},
		SessionID: session.SessionID.String(),
		Gen:       session.AccessGen,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// parse validates an access token, reporting expiry separately from every
// other failure.
func (t *tokenSigner) parse(tokenStr string) (*accessClaims, error) {
	claims := &accessClaims{}

	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, errTokenExpired
	case err != nil:
		return nil, errTokenInvalid
	}

	return claims, nil
}
