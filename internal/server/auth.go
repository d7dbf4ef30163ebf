package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errNoSession = errors.New("no valid session")

const tokenIssuer = "treasurehunt"

type playerClaims struct {
	PlayerID string `json:"pid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies player bearer tokens (HS256).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (ti *TokenIssuer) Issue(playerID string) (string, time.Time, error) {
	now := ti.now()
	exp := now.Add(ti.ttl)
	claims := playerClaims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Verify returns the player ID carried by a valid, unexpired token.
func (ti *TokenIssuer) Verify(token string) (string, error) {
	var claims playerClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil || claims.PlayerID == "" {
		return "", errNoSession
	}
	return claims.PlayerID, nil
}

func bearerToken(r *http.Request) string {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// playerIDFromRequest accepts the Authorization header, or the token
// query parameter used by EventSource and WebSocket clients.
func playerIDFromRequest(r *http.Request, tokens *TokenIssuer) (string, error) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", errNoSession
	}
	return tokens.Verify(token)
}
