package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type Claims struct {
	TokenType string `json:"token_type"`
	Role      string `json:"role,omitempty"`
	// SessionID ties an access token to the session opened for the refresh
	// token with that JTI. Every token still carries its own jti.
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, domain.WrapError(domain.KindTokenInvalid, "invalid token subject", err)
	}
	return uint(id), nil
}

type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewJWTManager falls back to the access secret when refreshSecret is empty.
func NewJWTManager(issuer, audience, accessSecret, refreshSecret string) *JWTManager {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}
}

func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *JWTManager) SignAccessToken(userID uint, role domain.Role, ttl time.Duration) (string, error) {
	token, _, err := m.SignSessionAccessToken(userID, role, ttl, "")
	return token, err
}

// SignSessionAccessToken mints an access token with a fresh jti, bound to
// sessionID when one is given.
func (m *JWTManager) SignSessionAccessToken(userID uint, role domain.Role, ttl time.Duration, sessionID string) (string, *Claims, error) {
	claims := m.newClaims(TokenTypeAccess, userID, ttl, uuid.NewString())
	claims.Role = string(role)
	claims.SessionID = sessionID
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (m *JWTManager) SignRefreshToken(userID uint, ttl time.Duration) (string, *Claims, error) {
	claims := m.newClaims(TokenTypeRefresh, userID, ttl, uuid.NewString())
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, TokenTypeAccess)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, TokenTypeRefresh)
}

func (m *JWTManager) newClaims(tokenType string, userID uint, ttl time.Duration, jti string) *Claims {
	now := m.now()
	return &Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
}

// parse selects the verification key from the claimed token type, so a
// well-formed token of the other type surfaces as WrongTokenType instead of a
// signature failure.
func (m *JWTManager) parse(raw, tokenType string) (*Claims, error) {
	if raw == "" {
		return nil, domain.ErrTokenMissing
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		if claims.TokenType == TokenTypeRefresh {
			return m.refreshSecret, nil
		}
		return m.accessSecret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	if claims.TokenType != tokenType {
		return nil, domain.NewError(domain.KindWrongTokenType, "wrong token type", map[string]any{
			"expected": tokenType,
			"actual":   claims.TokenType,
		})
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.WrapError(domain.KindTokenExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return domain.WrapError(domain.KindTokenNotYetValid, "token not yet valid", err)
	default:
		return domain.WrapError(domain.KindTokenInvalid, "invalid token", err)
	}
}
