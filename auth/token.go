package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens signs and validates the bearer tokens identifying callers.
// The signing key comes from configuration; token issuance itself lives
// with the external identity service, this covers validation plus the
// helper used to mint tokens in tests and tooling.
type Tokens struct {
	key      []byte
	duration time.Duration
}

func NewTokens(key string, duration time.Duration) *Tokens {
	return &Tokens{key: []byte(key), duration: duration}
}

// Generate creates a signed JWT for a specific user using HS256.
func (t *Tokens) Generate(userID string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "carechat",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// Validate parses and checks the signature and expiration of a token.
func (t *Tokens) Validate(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
