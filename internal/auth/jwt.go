// Package auth adapts JWT bearer credentials to the verifier collaborator
// the session controller consumes.
package auth

import (
	"context"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier validates HS256 bearer tokens whose subject claim carries the
// numeric user id. Any parse or claim problem is a policy outcome, not an
// error: the session is simply not authorized.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (int64, bool) {
	token, err := jwt.Parse(credential,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return 0, false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, false
	}

	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}
