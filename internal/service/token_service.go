package service

import (
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/security"
)

// TokenPair is what a successful login hands back to the client.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	CSRFToken        string    `json:"-"`
	TokenID          string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type TokenService struct {
	jwtMgr     *security.JWTManager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = config.RefreshTokenTTL
	}
	return &TokenService{jwtMgr: jwtMgr, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccessToken(userID uint, role domain.Role) (string, error) {
	return s.jwtMgr.SignAccessToken(userID, role, s.accessTTL)
}

// IssueSessionAccessToken binds a new access token to the session keyed by
// the refresh token's JTI.
func (s *TokenService) IssueSessionAccessToken(userID uint, role domain.Role, sessionJTI string) (string, time.Time, error) {
	token, claims, err := s.jwtMgr.SignSessionAccessToken(userID, role, s.accessTTL, sessionJTI)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

func (s *TokenService) IssueRefreshToken(userID uint) (token, jti string, err error) {
	token, claims, err := s.jwtMgr.SignRefreshToken(userID, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return token, claims.ID, nil
}

func (s *TokenService) IssuePair(user *domain.User) (*TokenPair, error) {
	refresh, refreshClaims, err := s.jwtMgr.SignRefreshToken(user.ID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.IssueSessionAccessToken(user.ID, user.Role, refreshClaims.ID)
	if err != nil {
		return nil, err
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		CSRFToken:        csrf,
		TokenID:          refreshClaims.ID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func (s *TokenService) VerifyAccessToken(raw string) (*security.Claims, error) {
	return s.jwtMgr.ParseAccessToken(raw)
}

func (s *TokenService) VerifyRefreshToken(raw string) (*security.Claims, error) {
	return s.jwtMgr.ParseRefreshToken(raw)
}
