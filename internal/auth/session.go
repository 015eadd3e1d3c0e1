package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/mailadmin/internal/model"
	"github.com/hitoshi/mailadmin/internal/token"
)

// Authenticate はアクセストークンを検証し、主体ユーザーを返す。
// 期限切れはTOKEN_EXPIRED、それ以外の検証失敗はINVALID_TOKENとして区別する。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	if accessToken == "" {
		return nil, model.NewNoTokenError()
	}

	claims, err := s.tokens.Verify(accessToken, token.ClassAccess)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, model.NewTokenExpiredError()
		}
		return nil, model.NewInvalidTokenError()
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserGoneError()
	}

	return user, nil
}

// Refresh はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// 検証失敗・ユーザー不在はすべてINVALID_REFRESH_TOKENとなる。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, model.NewInvalidRefreshTokenError()
	}

	claims, err := s.tokens.Verify(refreshToken, token.ClassRefresh)
	if err != nil {
		slog.Info("refresh rejected", slog.String("reason", err.Error()))
		return nil, model.NewInvalidRefreshTokenError()
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidRefreshTokenError()
	}

	return s.issueSession(user)
}
