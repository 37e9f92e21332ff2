package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
	"github.com/wolfman30/wa-navigator/internal/chatbot"
	observemetrics "github.com/wolfman30/wa-navigator/internal/observability/metrics"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

const defaultMaxWebhookBytes = 1 << 20

type webhookProcessor interface {
	HandleWebhook(ctx context.Context, body []byte) (chatbot.Summary, error)
}

// WhatsAppWebhookHandler serves the Meta webhook verification handshake and
// event deliveries.
type WhatsAppWebhookHandler struct {
	processor   webhookProcessor
	verifyToken string
	appSecret   string
	maxBody     int64
	logger      *logging.Logger
	metrics     *observemetrics.ChatbotMetrics
}

type WhatsAppWebhookConfig struct {
	Processor   webhookProcessor
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checks when set.
	AppSecret    string
	MaxBodyBytes int64
	Logger       *logging.Logger
	Metrics      *observemetrics.ChatbotMetrics
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Processor == nil {
		panic("handlers: whatsapp webhook requires a processor")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxWebhookBytes
	}
	return &WhatsAppWebhookHandler{
		processor:   cfg.Processor,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		maxBody:     cfg.MaxBodyBytes,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Verify answers the subscription handshake with the challenge verbatim.
func (h *WhatsAppWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(http.MethodGet, time.Since(start).Seconds()) }()

	challenge, ok := whatsapp.VerifyChallenge(r.URL.Query(), h.verifyToken)
	if !ok {
		h.logger.Warn("whatsapp webhook verification failed", "mode", r.URL.Query().Get("hub.mode"))
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}
	h.logger.Info("whatsapp webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive processes one delivery. It answers 200 whenever the envelope parses,
// whatever happened to the individual events.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(http.MethodPost, time.Since(start).Seconds()) }()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.logger.Error("failed to read whatsapp webhook body", "error", err)
		http.Error(w, "Error processing request", http.StatusInternalServerError)
		return
	}
	if h.appSecret != "" && !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("invalid whatsapp webhook signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// The sender may drop the connection once it has our answer; processing
	// must still finish.
	ctx := context.WithoutCancel(r.Context())
	summary, err := h.processor.HandleWebhook(ctx, body)
	if err != nil {
		h.logger.Error("error processing whatsapp webhook", "error", err)
		http.Error(w, "Error processing request", http.StatusInternalServerError)
		return
	}
	h.logger.Info("whatsapp webhook processed",
		"messages", summary.Messages,
		"statuses", summary.Statuses,
		"replies", summary.Replies,
		"malformed", summary.Malformed,
		"failed", summary.Failed,
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// Health reports webhook liveness.
func (h *WhatsAppWebhookHandler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Webhook is healthy")
}
