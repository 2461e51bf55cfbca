package notification

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/model"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailNotifier implements the Notifier interface for sending emails.
type EmailNotifier struct {
	cfg        config.SMTPConfig
	auth       smtp.Auth
	recipients []string
	sendMail   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.SMTPConfig) (model.Notifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	var recipients []string
	for _, to := range strings.Split(cfg.To, ",") {
		if to = strings.TrimSpace(to); to != "" {
			recipients = append(recipients, to)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New("smtp: no recipients configured")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		// PlainAuth will not send credentials until the server identifies itself as a trusted one.
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &EmailNotifier{cfg: cfg, auth: auth, recipients: recipients, sendMail: smtp.SendMail}, nil
}

func (n *EmailNotifier) message(subject, body string) []byte {
	return []byte("To: " + strings.Join(n.recipients, ", ") + "\r\n" +
		"From: " + n.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		body)
}

// Send sends an HTML email to the configured recipients.
func (n *EmailNotifier) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.sendMail(addr, n.auth, n.cfg.From, n.recipients, n.message(subject, body)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
