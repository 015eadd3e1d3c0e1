// Package mailer はパスワードリセット用OTPメールの送信を提供する。
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/mailadmin/internal/security"
)

// ErrDelivery はメール送信に失敗したことを示す。
var ErrDelivery = errors.New("mail delivery failed")

// Sender はOTPメールの送信を抽象化する。
type Sender interface {
	SendOTP(ctx context.Context, to, name, code string) error
}

// Message は送信するメール1通分の内容。
type Message struct {
	To      string
	Subject string
	HTML    string
}

const otpSubject = "Password Reset OTP"

var otpTemplate = template.Must(template.New("otp").Parse(`<div style="font-family: Arial, sans-serif; max-width: 480px; margin: 0 auto; padding: 32px; background: #f9fafb; border-radius: 12px;">
  <div style="text-align: center; margin-bottom: 24px;">
    <h1 style="color: #1f2937; font-size: 24px; margin: 0;">Password Reset</h1>
  </div>
  <p style="color: #374151; font-size: 16px;">Hi <strong>{{.Name}}</strong>,</p>
  <p style="color: #6b7280; font-size: 14px;">
    You requested a password reset. Use the OTP below to reset your password.
    This code expires in <strong>{{.ValidFor}}</strong>.
  </p>
  <div style="text-align: center; margin: 32px 0;">
    <div style="display: inline-block; padding: 16px 40px; background: #667eea; border-radius: 12px; letter-spacing: 8px; font-size: 32px; font-weight: bold; color: #ffffff;">{{.Code}}</div>
  </div>
  <p style="color: #6b7280; font-size: 13px; text-align: center;">
    If you didn't request this, please ignore this email.
  </p>
</div>
`))

var nameSanitizer = security.NewNameSanitizer()

// BuildOTPMessage はOTPメールの件名と本文を組み立てる。
// 表示名はタグを除去したうえでテンプレートのエスケープを通す。
func BuildOTPMessage(to, name, code string, validFor time.Duration) (*Message, error) {
	displayName := nameSanitizer.Sanitize(name)
	if displayName == "" {
		displayName = "there"
	}

	var body bytes.Buffer
	err := otpTemplate.Execute(&body, struct {
		Name     string
		Code     string
		ValidFor string
	}{
		Name:     displayName,
		Code:     code,
		ValidFor: formatMinutes(validFor),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render otp mail: %w", err)
	}

	return &Message{To: to, Subject: otpSubject, HTML: body.String()}, nil
}

func formatMinutes(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// LogSender はSMTP未設定時に使用するSender。
// メール本文（OTP）は出力せず、送信先のみをログに記録する。
type LogSender struct{}

// SendOTP はOTPメールを送信せずにログへ記録する。
func (LogSender) SendOTP(ctx context.Context, to, name, code string) error {
	slog.Warn("SMTPが未設定のためOTPメールを送信しません",
		slog.String("to", to),
	)
	return nil
}

// Recorder は送信内容をメモリに保持するSender。テストで使用する。
type Recorder struct {
	mu       sync.Mutex
	validFor time.Duration
	sent     []RecordedOTP
	err      error
}

// RecordedOTP はRecorderが受け取ったOTP送信1件。
type RecordedOTP struct {
	To      string
	Name    string
	Code    string
	Message *Message
}

// NewRecorder はRecorderを生成する。
func NewRecorder(validFor time.Duration) *Recorder {
	return &Recorder{validFor: validFor}
}

// FailWith は以降の送信を指定エラーで失敗させる。nilで解除する。
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SendOTP は送信内容を記録する。
func (r *Recorder) SendOTP(ctx context.Context, to, name, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, r.err)
	}
	msg, err := BuildOTPMessage(to, name, code, r.validFor)
	if err != nil {
		return err
	}
	r.sent = append(r.sent, RecordedOTP{To: to, Name: name, Code: code, Message: msg})
	return nil
}

// Sent は記録済みの送信一覧のコピーを返す。
func (r *Recorder) Sent() []RecordedOTP {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedOTP, len(r.sent))
	copy(out, r.sent)
	return out
}

// LastCode は指定宛先に最後に送信したOTPを返す。
func (r *Recorder) LastCode(to string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].To == to {
			return r.sent[i].Code, true
		}
	}
	return "", false
}
