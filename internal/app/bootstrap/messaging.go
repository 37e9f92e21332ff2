package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/wa-navigator/internal/config"
	"github.com/wolfman30/wa-navigator/internal/messaging"
	"github.com/wolfman30/wa-navigator/internal/observability/metrics"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// BuildMessageLog persists to whatsapp_messages when a pool is available.
func BuildMessageLog(pool *pgxpool.Pool, logger *logging.Logger) *messaging.Log {
	var store messaging.Store
	if pool != nil {
		store = messaging.NewPostgresStore(pool)
	} else {
		store = messaging.NewMemoryStore()
	}
	return messaging.NewLog(store, logger)
}

// BuildDispatcher selects the live or mock sender and returns the dispatcher
// together with the fallback reason, if live mode could not be honored.
func BuildDispatcher(cfg *appconfig.Config, msgLog *messaging.Log, m *metrics.ChatbotMetrics, logger *logging.Logger) (*messaging.Dispatcher, string) {
	senderCfg := messaging.SenderConfig{MockMode: true}
	if cfg != nil {
		senderCfg = messaging.SenderConfig{
			MockMode:      cfg.WhatsAppMockMode,
			APIBaseURL:    cfg.WhatsAppAPIBaseURL,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AccessToken:   cfg.WhatsAppAccessToken,
			Timeout:       cfg.WhatsAppHTTPTimeout,
		}
	}
	sender, reason := messaging.BuildSender(senderCfg, logger)

	opts := []messaging.DispatcherOption{
		messaging.WithDispatcherLogger(logger),
		messaging.WithMetrics(m),
	}
	if cfg != nil && cfg.WhatsAppPhoneNumberID != "" {
		opts = append(opts, messaging.WithSenderNumber(cfg.WhatsAppPhoneNumberID))
	}
	return messaging.NewDispatcher(sender, msgLog, opts...), reason
}
