package smtpsend

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/hkdb/ratmail/internal/logging"
)

// Config holds the connection parameters for one account's outgoing mail
// (spec.md §4.5 Send command / §6 account configuration).
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	SkipTLSVerify bool
	DialTimeout   time.Duration
}

// Send delivers msg over SMTP. Port 465 dials implicit TLS; every other
// port requires STARTTLS and the send fails if the server does not offer
// it (spec.md §4.5: "Errors never panic; they are emitted as
// SendFailed{reason}" — callers wrap this error into that event).
func Send(ctx context.Context, cfg Config, msg *ComposeMessage) error {
	log := logging.WithComponent("smtpsend")

	raw, err := msg.ToRFC822()
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	tlsConfig := &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.SkipTLSVerify}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	var conn net.Conn
	if cfg.Port == 465 {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("failed to connect via implicit tls: %w", err)
		}
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if cfg.Port != 465 {
		ok, _ := client.Extension("STARTTLS")
		if !ok {
			return fmt.Errorf("server does not support starttls on port %d", cfg.Port)
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	if ok, _ := client.Extension("AUTH"); ok && cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(msg.From.Address); err != nil {
		return fmt.Errorf("mail from failed: %w", err)
	}
	for _, rcpt := range msg.AllRecipients() {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %q failed: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data command failed: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize message: %w", err)
	}

	log.Info().Int("recipients", len(msg.AllRecipients())).Str("subject", msg.Subject).Msg("message sent")
	return client.Quit()
}
