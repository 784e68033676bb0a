package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// Config is the email slice of server configuration.
type Config struct {
	Enabled bool
	APIKey  string
	From    string
}

// Service sends transactional email through Resend. With Enabled false every
// send is logged and skipped, which is the default for development.
type Service struct {
	config Config
	client *resend.Client
	logger zerolog.Logger
}

func NewService(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender address: %w", err)
		}
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("email enabled but api key is empty")
		}
	}
	svc := &Service{
		config: cfg,
		logger: logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.client = resend.NewClient(cfg.APIKey)
	}
	return svc, nil
}

// ExpiryNoticeData fills the expiry notice template.
type ExpiryNoticeData struct {
	GalleryName string
	ExpiresAt   string
	DaysLeft    int
}

var expiryNoticeTemplate = template.Must(template.New("expiry_notice").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>Your gallery "{{.GalleryName}}" expires soon</h2>
  <p>
    The gallery will expire on <strong>{{.ExpiresAt}}</strong>
    ({{.DaysLeft}} day{{if ne .DaysLeft 1}}s{{end}} from now).
    After it expires, guests can no longer view or upload, and its photos and
    videos will be deleted.
  </p>
  <p>Upgrade or extend the gallery from your dashboard to keep it live.</p>
</body>
</html>`))

// SendExpiryNotice tells a host their gallery is about to expire.
func (s *Service) SendExpiryNotice(ctx context.Context, to, galleryName string, expiresAt time.Time) error {
	if err := validateAddress(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("gallery", galleryName).
			Time("expires_at", expiresAt).
			Msg("email disabled, skipping expiry notice")
		return nil
	}

	daysLeft := int(time.Until(expiresAt).Hours() / 24)
	if daysLeft < 0 {
		daysLeft = 0
	}
	var body bytes.Buffer
	if err := expiryNoticeTemplate.Execute(&body, ExpiryNoticeData{
		GalleryName: galleryName,
		ExpiresAt:   expiresAt.Format("January 2, 2006"),
		DaysLeft:    daysLeft,
	}); err != nil {
		return fmt.Errorf("render expiry notice: %w", err)
	}

	subject := fmt.Sprintf("Your gallery %q expires soon", galleryName)
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{to},
		Subject: subject,
		Html:    body.String(),
	})
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			s.logger.Warn().
				Str("limit", rateLimitErr.Limit).
				Str("reset", rateLimitErr.Reset).
				Msg("resend rate limit exceeded")
		}
		return fmt.Errorf("send expiry notice: %w", err)
	}

	s.logger.Info().Str("email_id", sent.Id).Str("to", to).Msg("expiry notice sent")
	return nil
}

func validateAddress(address string) error {
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("email address contains newline characters")
	}
	return nil
}
