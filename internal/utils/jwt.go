package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "type" claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ErrTokenType is returned by ParseToken when the "type" claim does not
// match the expected kind.
var ErrTokenType = errors.New("unexpected token type")

// Claims is the payload of both access and refresh tokens.  The jti
// (RegisteredClaims.ID) keeps two tokens minted in the same second for the
// same user distinct.
type Claims struct {
	UserID uint64 `json:"user_id"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// SignedToken is a serialized JWT and its expiry.
type SignedToken struct {
	Token string
	Exp   time.Time
}

// NewToken builds and signs an HS256 JWT of the given kind for userID.
// issuedAt is taken from the caller so that an injected clock drives both
// the iat and exp claims.
func NewToken(secret []byte, kind string, userID uint64, issuedAt time.Time, ttl time.Duration) (SignedToken, error) {
	jti, err := RandomToken(16)
	if err != nil {
		return SignedToken{}, err
	}
	issuedAt = issuedAt.UTC()
	exp := issuedAt.Add(ttl)
	claims := Claims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// ParseToken validates signature, expiry (against now) and the type claim.
// Only HMAC signing methods are accepted.
func ParseToken(secret []byte, raw, kind string, now func() time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Type != kind {
		return nil, ErrTokenType
	}
	return claims, nil
}

// RandomToken returns n bytes from crypto/rand encoded as unpadded
// URL-safe base64.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
