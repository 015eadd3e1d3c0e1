// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/mailadmin/internal/auth"
	"github.com/hitoshi/mailadmin/internal/metrics"
	"github.com/hitoshi/mailadmin/internal/middleware"
	"github.com/hitoshi/mailadmin/internal/model"
)

const (
	accessTokenCookie  = middleware.AccessTokenCookie
	refreshTokenCookie = "refreshToken"

	forgotPasswordMessage = "If an account with that email exists, an OTP has been sent."
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RegistrationOpen(ctx context.Context) (bool, error)
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	ResetPassword(ctx context.Context, resetToken, password, confirm string) error
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	Production   bool // trueの場合はSecure属性とSameSite=Strictを付与する
}

// AuthHandler は認証・パスワードリセット関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

type sessionData struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	ResetToken      string `json:"resetToken"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RegistrationStatus は新規登録を受け付けているかを返す。
// GET /api/auth/registration-status
func (h *AuthHandler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	open, err := h.service.RegistrationOpen(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]bool{"registrationOpen": open})
}

// Register は最初の管理者ユーザーを登録し、トークンCookieを設定する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), req)
	h.record(metrics.EventRegister, err)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.writeSession(w, http.StatusCreated, "Registration successful. You are the admin.", session)
}

// Login はメールアドレスとパスワードで認証し、トークンCookieを設定する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	h.record(metrics.EventLogin, err)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.writeSession(w, http.StatusOK, "Login successful.", session)
}

// RefreshToken はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// トークンはrefreshToken Cookieを優先し、無ければボディのrefreshTokenを使う。
// POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var raw string
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		raw = cookie.Value
	} else {
		var req refreshRequest
		// ボディは省略可能
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			raw = req.RefreshToken
		}
	}

	session, err := h.service.Refresh(r.Context(), raw)
	h.record(metrics.EventRefresh, err)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.writeSession(w, http.StatusOK, "", session)
}

// Logout はトークンCookieを削除する。リフレッシュトークンはステートレスのため失効処理は行わない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie(accessTokenCookie, "", -1))
	http.SetCookie(w, h.cookie(refreshTokenCookie, "", -1))
	writeSuccess(w, http.StatusOK, "Logged out successfully.", nil)
}

// Me は認証済みユーザーの情報を返す。認証ミドルウェアの後に配置すること。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, model.NewNoTokenError())
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]userResponse{"user": identityToUserResponse(id)})
}

// ForgotPassword はOTPを発行してメールで送信する。
// メールアドレスの登録有無に関わらず同じメッセージを返す。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.RequestPasswordReset(r.Context(), req.Email)
	h.record(metrics.EventResetRequest, err)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, forgotPasswordMessage, nil)
}

// VerifyOTP はOTPを検証し、リセットトークンを返す。
// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resetToken, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP)
	h.record(metrics.EventOTPVerify, err)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "OTP verified successfully.", map[string]string{"resetToken": resetToken})
}

// ResetPassword はリセットトークンを使って新しいパスワードを設定する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), req.ResetToken, req.Password, req.ConfirmPassword)
	h.record(metrics.EventPasswordReset, err)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password has been reset successfully. Please log in.", nil)
}

// writeSession はトークンCookieを設定し、ユーザーとトークンをレスポンスに含める。
func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, message string, s *auth.Session) {
	http.SetCookie(w, h.cookie(accessTokenCookie, s.AccessToken, int(h.service.AccessTTL().Seconds())))
	http.SetCookie(w, h.cookie(refreshTokenCookie, s.RefreshToken, int(h.service.RefreshTTL().Seconds())))

	writeSuccess(w, status, message, sessionData{
		User:         toUserResponse(s.User),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	})
}

// cookie はトークン用のCookieを生成する。maxAgeが負の場合は削除用となる。
func (h *AuthHandler) cookie(name, value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if h.config.Production {
		sameSite = http.SameSiteStrictMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.Production,
		SameSite: sameSite,
	}
}

func (h *AuthHandler) record(event string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	h.metrics.RecordAuthEvent(event, outcome)
}
