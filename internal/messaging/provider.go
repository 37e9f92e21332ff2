package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

const (
	// ModeLive posts to the WhatsApp Cloud API.
	ModeLive = "live"
	// ModeMock echoes payloads without network I/O.
	ModeMock = "mock"
)

// SendResult is what a Sender reports for an accepted message.
type SendResult struct {
	ProviderMessageID string
	Response          map[string]any
}

// Sender delivers one outbound payload. Implementations make a single attempt.
type Sender interface {
	Send(ctx context.Context, msg whatsapp.OutboundMessage) (SendResult, error)
	Mode() string
}

// SenderConfig captures what is needed to pick a Sender.
type SenderConfig struct {
	MockMode      bool
	APIBaseURL    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// BuildSender picks the live or mock sender once at startup. Live mode without
// credentials falls back to mock and reports why.
func BuildSender(cfg SenderConfig, logger *logging.Logger) (Sender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MockMode {
		logger.Info("whatsapp sender: mock mode enabled")
		return NewMockSender(), ""
	}

	var missing []string
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		missing = append(missing, "WHATSAPP_PHONE_NUMBER_ID missing")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		missing = append(missing, "WHATSAPP_ACCESS_TOKEN missing")
	}
	if len(missing) > 0 {
		reason := strings.Join(missing, ", ")
		logger.Warn("whatsapp sender: live credentials incomplete, using mock", "reason", reason)
		return NewMockSender(), reason
	}

	client, err := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL:       cfg.APIBaseURL,
		PhoneNumberID: cfg.PhoneNumberID,
		AccessToken:   cfg.AccessToken,
		Timeout:       cfg.Timeout,
		Logger:        logger,
	})
	if err != nil {
		logger.Warn("whatsapp sender: client init failed, using mock", "error", err)
		return NewMockSender(), err.Error()
	}
	logger.Info("whatsapp sender: live mode enabled", "phone_number_id", cfg.PhoneNumberID)
	return NewLiveSender(client), ""
}
