// Package mail sends transactional email through the Resend HTTP API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.resend.com"

// ResendMailer delivers verification and password reset emails.
type ResendMailer struct {
	apiKey    string
	from      string
	publicURL string
	client    *http.Client
	baseURL   string
}

// NewResendMailer builds a mailer. publicURL is the externally reachable base
// of this service, used to build links inside the emails.
func NewResendMailer(apiKey, from, publicURL string) *ResendMailer {
	return &ResendMailer{
		apiKey:    apiKey,
		from:      from,
		publicURL: publicURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		baseURL:   defaultBaseURL,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendVerificationEmail mails the email-confirmation link.
func (m *ResendMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/auth/verify?token=%s", m.publicURL, token)
	html := `<p>Welcome to Contactbook!</p>
<p>Please confirm your email address by clicking the link below:</p>
<p><a href="` + link + `">Confirm email</a></p>`
	return m.send(ctx, to, "Confirm your email", html)
}

// SendPasswordResetEmail mails the password reset token.
func (m *ResendMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.publicURL, token)
	html := `<p>A password reset was requested for your account.</p>
<p><a href="` + link + `">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>`
	return m.send(ctx, to, "Password reset request", html)
}

func (m *ResendMailer) send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send mail: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
