// Package auth mints and verifies the optional signed reconnect credential
// handed to clients alongside their opaque player id. It hardens spec.md's
// "opaque string" player id against casual spoofing without changing its
// wire shape or semantics.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ErrInvalidToken is returned for a token that fails signature verification,
// is expired, or names a different room than the one it is checked against.
var ErrInvalidToken = errors.New("auth: invalid reconnect token")

// reconnectClaims binds a reconnect token to one room and one player.
type reconnectClaims struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies reconnect tokens with an HMAC-SHA256 key
// owned by the process (not persisted across restarts).
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

// NewTokenIssuer constructs an issuer with the given signing key and token
// lifetime.
func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, ttl: ttl}
}

// Issue mints a reconnect token for playerID in roomCode.
func (t *TokenIssuer) Issue(roomCode, playerID string) (string, error) {
	now := time.Now()
	claims := reconnectClaims{
		RoomCode: roomCode,
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", errors.Wrap(err, "sign reconnect token")
	}
	return signed, nil
}

// Verify checks a reconnect token's signature and expiry, and that it names
// roomCode. It returns the player id it was issued for.
func (t *TokenIssuer) Verify(roomCode, tokenString string) (string, error) {
	var claims reconnectClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.RoomCode != roomCode {
		return "", ErrInvalidToken
	}
	return claims.PlayerID, nil
}
