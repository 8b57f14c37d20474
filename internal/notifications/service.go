package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"manifold/internal/config"
	"manifold/internal/missing"
)

const userAgent = "Manifold/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyMissingAssets(ctx context.Context, report *missing.Report) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by the mail relay when
// configured. When no relay URL is configured, a noop implementation is
// returned.
func NewService(cfg *config.Config) Service {
	relay := strings.TrimSpace(cfg.Mail.RelayURL)
	if relay == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Mail.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &mailService{
		endpoint:          relay,
		sender:            cfg.Mail.Sender,
		defaultRecipients: cfg.Mail.DefaultRecipients,
		client:            &http.Client{Timeout: timeout},
	}
}

type mailService struct {
	endpoint          string
	sender            string
	defaultRecipients []string
	client            *http.Client
}

// mailMessage is the relay's wire payload.
type mailMessage struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	HTMLBody   string   `json:"html_body"`
	TextBody   string   `json:"text_body"`
}

func (m *mailService) NotifyMissingAssets(ctx context.Context, report *missing.Report) error {
	if report == nil {
		return fmt.Errorf("missing assets report is nil")
	}
	recipients := splitRecipients(report.ExceptionRecipients)
	if len(recipients) == 0 {
		recipients = m.defaultRecipients
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured for exception notification")
	}

	titleName := report.TitleName
	if titleName == "" {
		titleName = "Unknown"
	}
	subject := fmt.Sprintf("Missing Assets Alert - DA %s - %s", report.DAID, titleName)
	return m.send(ctx, mailMessage{
		Sender:     m.sender,
		Recipients: recipients,
		Subject:    subject,
		HTMLBody:   BuildMissingAssetsHTML(report),
		TextBody:   BuildMissingAssetsText(report),
	})
}

func (m *mailService) TestNotification(ctx context.Context) error {
	if len(m.defaultRecipients) == 0 {
		return fmt.Errorf("no default recipients configured")
	}
	return m.send(ctx, mailMessage{
		Sender:     m.sender,
		Recipients: m.defaultRecipients,
		Subject:    "Manifold test notification",
		TextBody:   "Mail relay connectivity check.",
	})
}

func (m *mailService) send(ctx context.Context, msg mailMessage) error {
	if m == nil || m.client == nil {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mail relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type noopService struct{}

func (noopService) NotifyMissingAssets(context.Context, *missing.Report) error { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
