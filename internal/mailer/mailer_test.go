package mailer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOTPMessage(t *testing.T) {
	msg, err := BuildOTPMessage("ann@x.com", "Ann", "482913", 10*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "ann@x.com", msg.To)
	assert.Equal(t, "Password Reset OTP", msg.Subject)
	assert.Contains(t, msg.HTML, "Hi <strong>Ann</strong>")
	assert.Contains(t, msg.HTML, "482913")
	assert.Contains(t, msg.HTML, "10 minutes")
}

func TestBuildOTPMessage_StripsMarkupFromName(t *testing.T) {
	msg, err := BuildOTPMessage("ann@x.com", `<script>alert(1)</script><b>Ann</b>`, "482913", 10*time.Minute)
	require.NoError(t, err)

	assert.NotContains(t, msg.HTML, "<script>")
	assert.NotContains(t, msg.HTML, "<b>")
	assert.Contains(t, msg.HTML, "Ann")
}

func TestBuildOTPMessage_EmptyNameFallsBack(t *testing.T) {
	msg, err := BuildOTPMessage("ann@x.com", "  ", "482913", time.Minute)
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "Hi <strong>there</strong>")
	assert.Contains(t, msg.HTML, "<strong>1 minute</strong>")
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder(10 * time.Minute)
	ctx := context.Background()

	require.NoError(t, rec.SendOTP(ctx, "ann@x.com", "Ann", "111111"))
	require.NoError(t, rec.SendOTP(ctx, "bob@x.com", "Bob", "222222"))
	require.NoError(t, rec.SendOTP(ctx, "ann@x.com", "Ann", "333333"))

	assert.Len(t, rec.Sent(), 3)

	code, ok := rec.LastCode("ann@x.com")
	assert.True(t, ok)
	assert.Equal(t, "333333", code)

	_, ok = rec.LastCode("nobody@x.com")
	assert.False(t, ok)

	smtpDown := errors.New("smtp down")
	rec.FailWith(smtpDown)
	err := rec.SendOTP(ctx, "ann@x.com", "Ann", "444444")
	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, smtpDown)
	assert.Len(t, rec.Sent(), 3)
}

func TestSMTPSender_UnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "noreply@x.com", ValidFor: 10 * time.Minute})
	err = sender.SendOTP(context.Background(), "ann@x.com", "Ann", "482913")
	assert.ErrorIs(t, err, ErrDelivery)
}

// fakeSMTPServer は最小限のSMTP対話を行い、受信したDATAを返すテスト用サーバー。
func fakeSMTPServer(t *testing.T) (port int, received <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch cmd {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 localhost")
			case "MAIL", "RCPT":
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
				data, err := tp.ReadDotLines()
				if err != nil {
					return
				}
				out <- strings.Join(data, "\n")
				_ = tp.PrintfLine("250 OK")
			case "QUIT":
				_ = tp.PrintfLine("221 Bye")
				return
			default:
				_ = tp.PrintfLine("502 Command not implemented")
			}
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, out
}

func TestSMTPSender_SendsHTMLMessage(t *testing.T) {
	port, received := fakeSMTPServer(t)

	sender := NewSMTPSender(SMTPConfig{
		Host:     "127.0.0.1",
		Port:     port,
		From:     "noreply@x.com",
		AppName:  "Mail App",
		ValidFor: 10 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sender.SendOTP(ctx, "ann@x.com", "Ann", "482913"))

	select {
	case data := <-received:
		reader := bufio.NewReader(strings.NewReader(data))
		header, err := textproto.NewReader(reader).ReadMIMEHeader()
		require.NoError(t, err)
		assert.Equal(t, "Mail App <noreply@x.com>", header.Get("From"))
		assert.Equal(t, "ann@x.com", header.Get("To"))
		assert.Equal(t, "Password Reset OTP", header.Get("Subject"))
		assert.Contains(t, header.Get("Content-Type"), "text/html")
		assert.Contains(t, data, "482913")
	case <-time.After(5 * time.Second):
		t.Fatal("SMTPサーバーがメッセージを受信しませんでした")
	}
}
