package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"bourbonwatch/internal/config"
	"bourbonwatch/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const webhookTimeout = 10 * time.Second

// Senders builds the full channel set from configuration.
func Senders(cfg *config.Config, client HTTPClient, log *slog.Logger) []Sender {
	return []Sender{
		NewEmailSender(cfg, log),
		NewSMSSender(cfg, client, log),
		NewDiscordSender(cfg, client, log),
		NewSlackSender(cfg, client, log),
	}
}

// EmailSender delivers alerts over SMTP with STARTTLS.
type EmailSender struct {
	cfg *config.Config
	log *slog.Logger
}

// NewEmailSender creates the email channel.
func NewEmailSender(cfg *config.Config, log *slog.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, log: log}
}

// Channel implements Sender.
func (s *EmailSender) Channel() string { return "email" }

// Enabled implements Sender.
func (s *EmailSender) Enabled() bool {
	return s.cfg.EmailEnabled && s.cfg.SMTPUser != "" &&
		s.cfg.SMTPPassword != "" && s.cfg.EmailTo != ""
}

// Send implements Sender.
func (s *EmailSender) Send(_ context.Context, find model.NewFind) bool {
	subject, html, text := FormatEmail(find)

	const boundary = "bourbonwatch-alt"
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.SMTPUser)
	fmt.Fprintf(&msg, "To: %s\r\n", s.cfg.EmailTo)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, text)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, html)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	err := smtp.SendMail(addr, auth, s.cfg.SMTPUser, []string{s.cfg.EmailTo}, []byte(msg.String()))
	if err != nil {
		s.log.Error("email send failed", "error", err)
		return false
	}
	s.log.Info("email alert sent", "subject", subject)
	return true
}

// SMSSender delivers alerts through the Twilio messages API.
type SMSSender struct {
	cfg    *config.Config
	client HTTPClient
	log    *slog.Logger
}

// NewSMSSender creates the SMS channel.
func NewSMSSender(cfg *config.Config, client HTTPClient, log *slog.Logger) *SMSSender {
	return &SMSSender{cfg: cfg, client: client, log: log}
}

// Channel implements Sender.
func (s *SMSSender) Channel() string { return "sms" }

// Enabled implements Sender.
func (s *SMSSender) Enabled() bool {
	return s.cfg.SMSEnabled && s.cfg.TwilioAccountSID != "" && s.cfg.TwilioAuthToken != "" &&
		s.cfg.TwilioFromNumber != "" && s.cfg.SMSToNumber != ""
}

// Send implements Sender.
func (s *SMSSender) Send(ctx context.Context, find model.NewFind) bool {
	form := url.Values{
		"Body": {FormatSMS(find)},
		"From": {s.cfg.TwilioFromNumber},
		"To":   {s.cfg.SMSToNumber},
	}
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json",
		s.cfg.TwilioAccountSID)

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.SetBasicAuth(s.cfg.TwilioAccountSID, s.cfg.TwilioAuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("sms send failed", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		s.log.Error("sms send rejected", "status", resp.StatusCode)
		return false
	}
	s.log.Info("sms alert sent")
	return true
}

// DiscordSender delivers alerts to a Discord webhook.
type DiscordSender struct {
	cfg    *config.Config
	client HTTPClient
	log    *slog.Logger
}

// NewDiscordSender creates the Discord channel.
func NewDiscordSender(cfg *config.Config, client HTTPClient, log *slog.Logger) *DiscordSender {
	return &DiscordSender{cfg: cfg, client: client, log: log}
}

// Channel implements Sender.
func (s *DiscordSender) Channel() string { return "discord" }

// Enabled implements Sender.
func (s *DiscordSender) Enabled() bool {
	return s.cfg.DiscordEnabled && s.cfg.DiscordWebhookURL != ""
}

// Send implements Sender.
func (s *DiscordSender) Send(ctx context.Context, find model.NewFind) bool {
	payload := map[string]any{"embeds": []map[string]any{DiscordEmbed(find)}}
	if !postJSON(ctx, s.client, s.cfg.DiscordWebhookURL, payload) {
		s.log.Error("discord send failed")
		return false
	}
	s.log.Info("discord alert sent")
	return true
}

// SlackSender delivers alerts to a Slack incoming webhook.
type SlackSender struct {
	cfg    *config.Config
	client HTTPClient
	log    *slog.Logger
}

// NewSlackSender creates the Slack channel.
func NewSlackSender(cfg *config.Config, client HTTPClient, log *slog.Logger) *SlackSender {
	return &SlackSender{cfg: cfg, client: client, log: log}
}

// Channel implements Sender.
func (s *SlackSender) Channel() string { return "slack" }

// Enabled implements Sender.
func (s *SlackSender) Enabled() bool {
	return s.cfg.SlackEnabled && s.cfg.SlackWebhookURL != ""
}

// Send implements Sender.
func (s *SlackSender) Send(ctx context.Context, find model.NewFind) bool {
	payload := map[string]any{"blocks": SlackBlocks(find)}
	if !postJSON(ctx, s.client, s.cfg.SlackWebhookURL, payload) {
		s.log.Error("slack send failed")
		return false
	}
	s.log.Info("slack alert sent")
	return true
}

func postJSON(ctx context.Context, client HTTPClient, endpoint string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 300
}
