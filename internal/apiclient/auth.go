package apiclient

import (
	"context"
	"net/http"
)

// User はAPIが返すユーザー情報。
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session はログイン・登録・リフレッシュで返されるユーザーとトークンの組。
type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterRequest は管理者登録のリクエスト。
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RegistrationStatus は管理者登録を受け付けているかを返す。
func (c *Client) RegistrationStatus(ctx context.Context) (bool, error) {
	var data struct {
		RegistrationOpen bool `json:"registrationOpen"`
	}
	if err := c.Do(ctx, http.MethodGet, "/auth/registration-status", nil, &data); err != nil {
		return false, err
	}
	return data.RegistrationOpen, nil
}

// Register は最初の管理者を登録し、発行されたトークンを保持する。
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	return c.startSession(ctx, "/auth/register", req)
}

// Login はメールアドレスとパスワードでログインし、発行されたトークンを保持する。
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.startSession(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) startSession(ctx context.Context, path string, body any) (*Session, error) {
	var session Session
	if err := c.Do(ctx, http.MethodPost, path, body, &session); err != nil {
		return nil, err
	}
	c.store.Set(session.AccessToken, session.RefreshToken)
	return &session, nil
}

// Logout はサーバーのCookieを削除し、保持しているトークンを破棄する。
// サーバー呼び出しが失敗してもローカルのセッションは破棄する。
func (c *Client) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.store.Clear()
	c.jar.reset()
	return err
}

// Me はログイン中のユーザーを返す。
func (c *Client) Me(ctx context.Context) (*User, error) {
	var data struct {
		User User `json:"user"`
	}
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// ForgotPassword はOTPメールの送信を要求する。
// 登録されていないアドレスでも成功として扱われる。
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.Do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// VerifyOTP はOTPを検証し、パスワード再設定用のリセットトークンを返す。
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	var data struct {
		ResetToken string `json:"resetToken"`
	}
	err := c.Do(ctx, http.MethodPost, "/auth/verify-otp", map[string]string{
		"email": email,
		"otp":   otp,
	}, &data)
	if err != nil {
		return "", err
	}
	return data.ResetToken, nil
}

// ResetPassword はリセットトークンを使って新しいパスワードを設定する。
func (c *Client) ResetPassword(ctx context.Context, resetToken, password, confirmPassword string) error {
	return c.Do(ctx, http.MethodPost, "/auth/reset-password", map[string]string{
		"resetToken":      resetToken,
		"password":        password,
		"confirmPassword": confirmPassword,
	}, nil)
}
