package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/mailadmin/internal/model"
	"github.com/hitoshi/mailadmin/internal/otp"
	"github.com/hitoshi/mailadmin/internal/repository"
	"github.com/hitoshi/mailadmin/internal/token"
)

// ErrMailDelivery はOTPメールの送信に失敗したことを示す。
// 作成済みのリセット要求はロールバックしない。
var ErrMailDelivery = errors.New("failed to deliver otp mail")

// RequestPasswordReset はOTPを生成してリセット要求を作成し、メールで送信する。
// ユーザーが存在しない・パスワード未設定の場合も成功と同じくnilを返し、
// メールアドレスの登録有無を応答から推測させない。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)
	if email == "" {
		return model.NewValidationError("Please provide your email.")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsRegistered() {
		slog.Info("password reset requested for unknown account")
		return nil
	}

	code, err := otp.Generate()
	if err != nil {
		return err
	}
	hash, err := otp.Hash(code)
	if err != nil {
		return err
	}

	now := s.now()
	reset := &model.PasswordReset{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		OTPHash:   hash,
		ExpiresAt: now.Add(s.config.OTPTTL),
		CreatedAt: now,
	}
	if err := s.resetRepo.Replace(ctx, reset); err != nil {
		return fmt.Errorf("failed to save password reset: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, user.Email, user.Name, code); err != nil {
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}

	slog.Info("password reset otp sent",
		slog.String("user_id", user.ID),
		slog.String("reset_id", reset.ID),
	)
	return nil
}

// VerifyOTP はOTPを検証し、成功した場合はリセットトークンを返す。
// 検証はリセット要求を消費しないため、消費されるまでは同じOTPで再検証できる。
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	email = model.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return "", model.NewValidationError("Please provide email and OTP.")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 登録有無を応答時間から推測させないよう、既存ユーザーと同じbcrypt照合を行う
		_ = otp.CompareDummy(code)
		return "", model.NewOTPInvalidError()
	}

	reset, err := s.resetRepo.FindLatestActive(ctx, user.ID, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to find password reset: %w", err)
	}
	if reset == nil {
		return "", model.NewOTPExpiredOrInvalidError()
	}

	if !otp.WellFormed(code) {
		return "", model.NewOTPInvalidError()
	}
	if err := otp.Compare(reset.OTPHash, code); err != nil {
		if errors.Is(err, otp.ErrMismatch) {
			slog.Warn("otp mismatch", slog.String("user_id", user.ID))
			return "", model.NewOTPInvalidError()
		}
		return "", err
	}

	resetToken, err := s.tokens.IssueResetToken(user.ID, reset.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue reset token: %w", err)
	}

	slog.Info("otp verified",
		slog.String("user_id", user.ID),
		slog.String("reset_id", reset.ID),
	)
	return resetToken, nil
}

// ResetPassword はリセットトークンを検証し、パスワードを更新してリセット要求を消費する。
// 同一トークンでの2回目以降の呼び出しはRESET_LINK_ALREADY_USEDとなる。
func (s *Service) ResetPassword(ctx context.Context, resetToken, password, confirm string) error {
	if resetToken == "" || password == "" || confirm == "" {
		return model.NewValidationError("Please provide reset token, password, and confirm password.")
	}
	if err := validateNewPassword(password, confirm); err != nil {
		return err
	}

	claims, err := s.tokens.Verify(resetToken, token.ClassReset)
	if err != nil {
		return model.NewResetLinkExpiredError()
	}

	reset, err := s.resetRepo.FindByID(ctx, claims.ResetID)
	if err != nil {
		return fmt.Errorf("failed to find password reset: %w", err)
	}
	if reset == nil || reset.Used || reset.UserID != claims.UserID() {
		return model.NewResetLinkAlreadyUsedError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// 事前確認と消費の間に別リクエストが消費した場合もここで検出される
	if err := s.resetRepo.Consume(ctx, reset.ID, claims.UserID(), string(hash)); err != nil {
		switch {
		case errors.Is(err, repository.ErrResetAlreadyUsed):
			return model.NewResetLinkAlreadyUsedError()
		case errors.Is(err, repository.ErrUserNotFound):
			return model.NewUserNotFoundError()
		default:
			return fmt.Errorf("failed to reset password: %w", err)
		}
	}

	slog.Info("password reset completed",
		slog.String("user_id", claims.UserID()),
		slog.String("reset_id", reset.ID),
	)
	return nil
}
