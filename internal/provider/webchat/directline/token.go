// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package directline

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of every issued token.
const TokenTTL = 30 * time.Minute

// Issuer is the iss claim of issued tokens.
const Issuer = "greentic-webchat"

// Context is the tenancy a token and its conversation belong to.
type Context struct {
	Env    string `json:"env"`
	Tenant string `json:"tenant"`
	Team   string `json:"team,omitempty"`
}

// Claims are the claims of a Direct Line token. Conv is empty until the
// token is exchanged for a conversation.
type Claims struct {
	Ctx  Context `json:"ctx"`
	Conv string  `json:"conv,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for user. A non-empty conv binds the
// token to that conversation.
func IssueToken(key []byte, ctx Context, user, conv string, now time.Time) (string, error) {
	claims := Claims{
		Ctx:  ctx,
		Conv: conv,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// VerifyToken checks the signature, issuer and expiry of token as of now.
func VerifyToken(key []byte, token string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
