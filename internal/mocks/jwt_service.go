package mocks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/service/auth"
)

// MockJWTService is a mock implementation of auth.JWTService. Without
// overrides, tokens have the form "token-<userID>" and "refresh-<userID>".
type MockJWTService struct {
	GenerateTokenFn        func(ctx context.Context, userID int64) (string, error)
	ValidateTokenFn        func(ctx context.Context, token string) (*auth.Claims, error)
	GenerateRefreshTokenFn func(ctx context.Context, userID int64) (string, error)
	ValidateRefreshTokenFn func(ctx context.Context, token string) (*auth.Claims, error)
}

var _ auth.JWTService = (*MockJWTService)(nil)

// NewMockJWTService returns a mock with the default token scheme.
func NewMockJWTService() *MockJWTService {
	return &MockJWTService{}
}

// GenerateToken implements auth.JWTService.
func (m *MockJWTService) GenerateToken(ctx context.Context, userID int64) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, userID)
	}
	return fmt.Sprintf("token-%d", userID), nil
}

// ValidateToken implements auth.JWTService.
func (m *MockJWTService) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, token)
	}
	return parseMockToken(token, "token-", auth.TokenTypeAccess, auth.ErrInvalidToken)
}

// GenerateRefreshToken implements auth.JWTService.
func (m *MockJWTService) GenerateRefreshToken(ctx context.Context, userID int64) (string, error) {
	if m.GenerateRefreshTokenFn != nil {
		return m.GenerateRefreshTokenFn(ctx, userID)
	}
	return fmt.Sprintf("refresh-%d", userID), nil
}

// ValidateRefreshToken implements auth.JWTService.
func (m *MockJWTService) ValidateRefreshToken(ctx context.Context, token string) (*auth.Claims, error) {
	if m.ValidateRefreshTokenFn != nil {
		return m.ValidateRefreshTokenFn(ctx, token)
	}
	return parseMockToken(token, "refresh-", auth.TokenTypeRefresh, auth.ErrInvalidRefreshToken)
}

func parseMockToken(token, prefix, tokenType string, invalid error) (*auth.Claims, error) {
	rest, ok := strings.CutPrefix(token, prefix)
	if !ok {
		return nil, invalid
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return nil, invalid
	}
	now := time.Now()
	return &auth.Claims{
		UserID:    id,
		TokenType: tokenType,
		Subject:   rest,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}, nil
}
