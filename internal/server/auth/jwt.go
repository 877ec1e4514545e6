// Package auth issues and verifies the bearer tokens of the HTTP API. A token
// carries the whole actor: user, company and role.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID    string     `json:"uid"`
	CompanyID string     `json:"cid"`
	Role      actor.Role `json:"role"`
}

func GenerateToken(a actor.Actor, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:    a.UserID,
		CompanyID: a.CompanyID,
		Role:      a.Role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ActorFromToken verifies tokenString and returns the actor it was issued
// for.
func ActorFromToken(tokenString string, secretKey []byte) (actor.Actor, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return actor.Actor{}, common.ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return actor.Actor{}, common.ErrInvalidToken
	}

	a := actor.Actor{UserID: claims.UserID, CompanyID: claims.CompanyID, Role: claims.Role}
	if err := a.Validate(); err != nil {
		return actor.Actor{}, common.ErrInvalidToken
	}
	return a, nil
}
