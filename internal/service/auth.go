package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alert-relay/backend/internal/config"
	"github.com/alert-relay/backend/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized - 토큰 검증 실패
var ErrUnauthorized = errors.New("unauthorized")

const defaultTokenTTL = 24 * time.Hour

// AuthService - /api/v1 보호용 HS256 토큰 발급 / 검증
type AuthService struct {
	jwtSecret []byte
	now       func() time.Time
}

type authClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func NewAuthService(cfg config.AuthConfig) (*AuthService, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("%w: AUTH_JWT_SECRET is required", ErrMisconfigured)
	}
	return &AuthService{jwtSecret: []byte(cfg.JWTSecret), now: time.Now}, nil
}

// IssueToken - 운영자용 API 토큰 발급 (ttl <= 0 이면 24h)
func (s *AuthService) IssueToken(subject, scope string, ttl time.Duration) (model.TokenResponse, error) {
	if strings.TrimSpace(subject) == "" {
		return model.TokenResponse{}, fmt.Errorf("subject is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := s.now()
	claims := authClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return model.TokenResponse{AccessToken: signed, ExpiresIn: int64(ttl.Seconds())}, nil
}

func (s *AuthService) ParseAccessToken(tokenStr string) (*model.AuthUser, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}
	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	return &model.AuthUser{Subject: claims.Subject, Scope: claims.Scope}, nil
}
