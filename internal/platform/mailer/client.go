package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/datastations/packaging-service/internal/platform/envutil"
	"github.com/datastations/packaging-service/internal/platform/logger"
)

// Client sends operator mail through a SendGrid-compatible REST endpoint.
// The chain executor uses it to alert operators when a deposit run halts.
type Client interface {
	Send(ctx context.Context, req SendEmailRequest) error
}

type Config struct {
	APIKey           string
	BaseURL          string
	DefaultFromEmail string
	DefaultToEmail   string
	Timeout          time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:           strings.TrimSpace(os.Getenv("MAIL_API_KEY")),
		BaseURL:          strings.TrimSpace(os.Getenv("MAIL_BASE_URL")),
		DefaultFromEmail: strings.TrimSpace(os.Getenv("MAIL_FROM_EMAIL")),
		DefaultToEmail:   strings.TrimSpace(os.Getenv("MAIL_TO_EMAIL")),
		Timeout:          envutil.Dur("MAIL_TIMEOUT", 30*time.Second),
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing MAIL_API_KEY")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("client", "MailClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type SendEmailRequest struct {
	From    EmailAddress
	To      []EmailAddress
	Subject string
	Text    string
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             EmailAddress      `json:"from"`
	Subject          string            `json:"subject,omitempty"`
	Content          []mailContent     `json:"content,omitempty"`
}

type personalization struct {
	To []EmailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c *client) Send(ctx context.Context, req SendEmailRequest) error {
	if req.From.Email == "" {
		req.From.Email = c.cfg.DefaultFromEmail
	}
	if len(req.To) == 0 && c.cfg.DefaultToEmail != "" {
		req.To = []EmailAddress{{Email: c.cfg.DefaultToEmail}}
	}
	if req.From.Email == "" || len(req.To) == 0 {
		return fmt.Errorf("mail send: from and to required")
	}

	payload := mailSendRequest{
		Personalizations: []personalization{{To: req.To}},
		From:             req.From,
		Subject:          req.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: req.Text}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v3/mail/send"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mail send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Error("Mail send failed", "status", resp.StatusCode, "body", string(detail))
		return fmt.Errorf("mail send: status %d", resp.StatusCode)
	}
	return nil
}
