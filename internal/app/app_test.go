package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/mailadmin/internal/config"
	"github.com/hitoshi/mailadmin/internal/mailer"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.DatabaseURL != testDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, testDatabaseURL)
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	// Clear all required env vars
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("JWT_RESET_SECRET", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestNewMailSender_WithoutSMTPHost_UsesLogSender(t *testing.T) {
	sender := newMailSender(&config.Config{})
	if _, ok := sender.(mailer.LogSender); !ok {
		t.Errorf("sender = %T, want mailer.LogSender", sender)
	}
}

func TestNewMailSender_WithSMTPHost_UsesSMTPSender(t *testing.T) {
	sender := newMailSender(&config.Config{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		SMTPFrom: "no-reply@example.com",
		OTPTTL:   10 * time.Minute,
	})
	if _, ok := sender.(*mailer.SMTPSender); !ok {
		t.Errorf("sender = %T, want *mailer.SMTPSender", sender)
	}
}

func TestListenAndServe_ClosedServerIsNotAnError(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	server.Close()

	if err := listenAndServe(server); err != nil {
		t.Errorf("listenAndServe after Close = %v, want nil", err)
	}
}

func TestMaskDatabaseURL_HidesCredentials(t *testing.T) {
	masked := maskDatabaseURL(testDatabaseURL)
	if bytes.Contains([]byte(masked), []byte("pass")) {
		t.Errorf("masked URL still contains credentials: %q", masked)
	}
	if got := maskDatabaseURL("short"); got != "***" {
		t.Errorf("maskDatabaseURL(short) = %q, want ***", got)
	}
}
