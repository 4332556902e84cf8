// Package auth validates bearer tokens issued by the external identity
// provider and carries the authenticated user through request contexts.
// Token issuance lives outside this subsystem; only the RSA public key is
// held here.
package auth

import (
	"crypto/rsa"
	stderrors "errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	errors "github.com/frahmantamala/order-management/internal"
)

type Claims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator checks RS256 access tokens against the identity provider's
// public key.
type TokenValidator struct {
	publicKey *rsa.PublicKey
}

func NewTokenValidator(publicKey *rsa.PublicKey) *TokenValidator {
	return &TokenValidator{publicKey: publicKey}
}

func (v *TokenValidator) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.ErrInvalidToken
		}
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrInvalidToken
	}
	if !token.Valid {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}

// UserFromClaims builds the request user. The subject claim is the fallback
// identity when the provider omits user_id.
func UserFromClaims(claims *Claims) (*User, error) {
	idValue := claims.UserID
	if idValue == "" {
		idValue = claims.Subject
	}
	id, err := strconv.ParseInt(idValue, 10, 64)
	if err != nil {
		return nil, errors.ErrInvalidToken
	}
	return &User{
		ID:          id,
		Email:       claims.Email,
		Permissions: claims.Permissions,
	}, nil
}
