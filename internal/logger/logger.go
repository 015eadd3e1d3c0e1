// Package logger はJSON構造化ログのセットアップを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// redactedKeys は値をログに出力してはならない属性キーの集合。
// パスワード・OTP・各種トークンが誤って記録されることを防ぐ。
var redactedKeys = map[string]struct{}{
	"password":         {},
	"confirm_password": {},
	"otp":              {},
	"access_token":     {},
	"refresh_token":    {},
	"reset_token":      {},
	"authorization":    {},
}

const redactedValue = "[REDACTED]"

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 秘匿属性の値は[REDACTED]に置き換えて出力する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: redactSecrets,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[a.Key]; ok {
		return slog.String(a.Key, redactedValue)
	}
	return a
}
