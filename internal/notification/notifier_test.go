package notification

import (
	"NetSpectraIDS/internal/config"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailNotifier_Send(t *testing.T) {
	n, err := NewEmailNotifier(config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "ids@example.com",
		To:   "soc@example.com, oncall@example.com,",
	})
	require.NoError(t, err)

	var gotAddr string
	var gotTo []string
	var gotMsg string
	email := n.(*EmailNotifier)
	email.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, n.Send("Alert", "<p>hi</p>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"soc@example.com", "oncall@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Alert\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\n<p>hi</p>"))

	email.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 busy") }
	assert.ErrorContains(t, n.Send("Alert", "body"), "421 busy")
}

func TestNewEmailNotifier_Invalid(t *testing.T) {
	_, err := NewEmailNotifier(config.SMTPConfig{From: "a@b"})
	assert.Error(t, err)
	_, err = NewEmailNotifier(config.SMTPConfig{Host: "h", From: "a@b", To: " , "})
	assert.Error(t, err)
}
