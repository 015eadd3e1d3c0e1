// Package auth は登録・ログイン・トークン更新とOTPによるパスワードリセットを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/mailadmin/internal/mailer"
	"github.com/hitoshi/mailadmin/internal/model"
	"github.com/hitoshi/mailadmin/internal/repository"
	"github.com/hitoshi/mailadmin/internal/security"
	"github.com/hitoshi/mailadmin/internal/token"
)

// PasswordCost はパスワードハッシュのbcryptコスト。
const PasswordCost = 12

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	OTPTTL time.Duration // OTPの有効期間
}

// Session はログイン・登録・トークン更新の結果を表す。
type Session struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

// RegisterInput は登録リクエストの入力値。
type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	resetRepo    repository.PasswordResetRepository
	tokens       *token.Issuer
	mailer       mailer.Sender
	sanitizer    security.NameSanitizer
	config       ServiceConfig
	now          func() time.Time
	passwordCost int
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPasswordCost はパスワードハッシュのbcryptコストを変更する。テストで使用する。
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.passwordCost = cost
	}
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	resetRepo repository.PasswordResetRepository,
	tokens *token.Issuer,
	sender mailer.Sender,
	config ServiceConfig,
	opts ...Option,
) *Service {
	s := &Service{
		userRepo:     userRepo,
		resetRepo:    resetRepo,
		tokens:       tokens,
		mailer:       sender,
		sanitizer:    security.NewNameSanitizer(),
		config:       config,
		now:          time.Now,
		passwordCost: PasswordCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegistrationOpen は新規登録を受け付けているか（登録済みユーザーが0件か）を返す。
func (s *Service) RegistrationOpen(ctx context.Context) (bool, error) {
	count, err := s.userRepo.CountRegistered(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count registered users: %w", err)
	}
	return count == 0, nil
}

// Register は最初の1ユーザーを管理者として登録し、トークンを発行する。
// 登録済みユーザーが存在する場合は入力値に関わらずRegistrationClosedを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	open, err := s.RegistrationOpen(ctx)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, model.NewRegistrationClosedError()
	}

	in.Name = s.sanitizer.Sanitize(in.Name)
	in.Email = model.NormalizeEmail(in.Email)
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 件数確認はリポジトリのトランザクション内で再度行われる
	if err := s.userRepo.RegisterFirst(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrRegistrationClosed):
			return nil, model.NewRegistrationClosedError()
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, model.NewEmailTakenError()
		default:
			return nil, fmt.Errorf("failed to register user: %w", err)
		}
	}

	slog.Info("admin user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return s.issueSession(user)
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// ユーザー不在・パスワード未設定・不一致はすべて同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("Please provide email and password.")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsRegistered() {
		slog.Warn("login failed", slog.String("email", email), slog.String("reason", "unknown user"))
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed", slog.String("user_id", user.ID), slog.String("reason", "password mismatch"))
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return s.issueSession(user)
}

// AccessTTL はアクセストークンの有効期間を返す。
func (s *Service) AccessTTL() time.Duration {
	return s.tokens.TTL(token.ClassAccess)
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (s *Service) RefreshTTL() time.Duration {
	return s.tokens.TTL(token.ClassRefresh)
}

func (s *Service) issueSession(user *model.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	return &Session{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}
