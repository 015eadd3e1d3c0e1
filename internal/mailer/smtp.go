package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// defaultDialTimeout はSMTPサーバーへの接続タイムアウト。
const defaultDialTimeout = 10 * time.Second

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	AppName  string
	ValidFor time.Duration // OTPの有効期間（本文に表示）
}

// SMTPSender はSMTPサーバー経由でOTPメールを送信する。
type SMTPSender struct {
	config      SMTPConfig
	dialTimeout time.Duration
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{config: cfg, dialTimeout: defaultDialTimeout}
}

// SendOTP はOTPメールを送信する。失敗時はErrDeliveryをラップして返す。
func (s *SMTPSender) SendOTP(ctx context.Context, to, name, code string) error {
	msg, err := BuildOTPMessage(to, name, code, s.config.ValidFor)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

func (s *SMTPSender) send(ctx context.Context, msg *Message) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	dialer := &net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.config.User != "" {
		auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(s.compose(msg)); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return client.Quit()
}

// compose はヘッダーとHTML本文からRFC 5322形式のメッセージを組み立てる。
func (s *SMTPSender) compose(msg *Message) []byte {
	from := s.config.From
	if s.config.AppName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.AppName), s.config.From)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.HTML, "\n", "\r\n"))
	return []byte(b.String())
}
