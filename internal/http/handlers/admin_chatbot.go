package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/wa-navigator/internal/conversation"
	"github.com/wolfman30/wa-navigator/internal/messaging"
	"github.com/wolfman30/wa-navigator/internal/reply"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

type sessionReader interface {
	FindByPhoneNumber(ctx context.Context, phone string) (conversation.Session, error)
	ListActive(ctx context.Context) ([]conversation.Session, error)
	CountActive(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type sessionManager interface {
	Reset(ctx context.Context, phone string) (conversation.Session, error)
	EndSession(ctx context.Context, phone string) error
	UpdatePreferences(ctx context.Context, phone, preferences string) (conversation.Session, error)
}

type messageHistory interface {
	History(ctx context.Context, phone string) ([]messaging.Record, error)
	List(ctx context.Context, page, size int) (messaging.Page, error)
	Counts(ctx context.Context) (messaging.Counts, error)
}

type replySender interface {
	SendReply(ctx context.Context, to string, spec reply.Spec) (messaging.Delivery, error)
	Mode() string
}

// AdminChatbotHandler hosts the management API for sessions and the message
// log.
type AdminChatbotHandler struct {
	sessions sessionReader
	manager  sessionManager
	messages messageHistory
	sender   replySender
	logger   *logging.Logger
	now      func() time.Time
}

type AdminChatbotConfig struct {
	Sessions sessionReader
	Manager  sessionManager
	Messages messageHistory
	Sender   replySender
	Logger   *logging.Logger
}

func NewAdminChatbotHandler(cfg AdminChatbotConfig) *AdminChatbotHandler {
	if cfg.Sessions == nil || cfg.Manager == nil || cfg.Messages == nil || cfg.Sender == nil {
		panic("handlers: admin chatbot handler missing dependencies")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminChatbotHandler{
		sessions: cfg.Sessions,
		manager:  cfg.Manager,
		messages: cfg.Messages,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// SendMessage sends a text message: POST /api/send-message?to=&message=
func (h *AdminChatbotHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	to := messaging.NormalizeWAID(formValue(r, "to"))
	message := formValue(r, "message")
	if to == "" || strings.TrimSpace(message) == "" {
		http.Error(w, "to and message are required", http.StatusBadRequest)
		return
	}
	h.logger.Info("admin send message", "to", to)
	h.send(w, r, to, reply.Text{Body: message}, "Message sent successfully")
}

// SendButtonMessage sends an interactive button message:
// POST /api/send-button-message?to=&bodyText=&buttonIds=a,b&buttonTitles=A,B
func (h *AdminChatbotHandler) SendButtonMessage(w http.ResponseWriter, r *http.Request) {
	to := messaging.NormalizeWAID(formValue(r, "to"))
	body := formValue(r, "bodyText")
	ids := splitList(r, "buttonIds")
	titles := splitList(r, "buttonTitles")
	if to == "" {
		http.Error(w, "to is required", http.StatusBadRequest)
		return
	}
	if len(ids) != len(titles) {
		http.Error(w, "buttonIds and buttonTitles must have the same length", http.StatusBadRequest)
		return
	}
	buttons := make([]reply.Button, len(ids))
	for i := range ids {
		buttons[i] = reply.Button{ID: ids[i], Title: titles[i]}
	}
	h.logger.Info("admin send button message", "to", to, "buttons", len(buttons))
	h.send(w, r, to, reply.Buttons{Body: body, Buttons: buttons}, "Button message sent successfully")
}

func (h *AdminChatbotHandler) send(w http.ResponseWriter, r *http.Request, to string, spec reply.Spec, okMessage string) {
	delivery, err := h.sender.SendReply(r.Context(), to, spec)
	if errors.Is(err, reply.ErrInvalidReply) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("admin send failed", "to", to, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Failed to send message"})
		return
	}
	if !delivery.Sent() {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":  false,
			"message":  "Failed to send message: " + delivery.Reason,
			"delivery": delivery,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  okMessage,
		"mode":     h.sender.Mode(),
		"response": delivery.Response,
		"delivery": delivery,
	})
}

// PhoneMessages returns the history for one number, newest first.
func (h *AdminChatbotHandler) PhoneMessages(w http.ResponseWriter, r *http.Request) {
	phone := messaging.NormalizeWAID(chi.URLParam(r, "phoneNumber"))
	records, err := h.messages.History(r.Context(), phone)
	if err != nil {
		h.logger.Error("list messages for phone failed", "phone", phone, "error", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []messaging.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Messages returns one page of the log: GET /api/messages?page=&size=
func (h *AdminChatbotHandler) Messages(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", 20)
	result, err := h.messages.List(r.Context(), page, size)
	if err != nil {
		h.logger.Error("list messages failed", "error", err)
		http.Error(w, "failed to load messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Session returns the stored session for a number, active or not.
func (h *AdminChatbotHandler) Session(w http.ResponseWriter, r *http.Request) {
	phone := messaging.NormalizeWAID(chi.URLParam(r, "phoneNumber"))
	sess, err := h.sessions.FindByPhoneNumber(r.Context(), phone)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("load session failed", "phone", phone, "error", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *AdminChatbotHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list sessions failed", "error", err)
		http.Error(w, "failed to load sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []conversation.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *AdminChatbotHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.messages.Counts(ctx)
	if err != nil {
		h.logger.Error("count messages failed", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	total, err := h.sessions.Count(ctx)
	if err != nil {
		h.logger.Error("count sessions failed", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	active, err := h.sessions.CountActive(ctx)
	if err != nil {
		h.logger.Error("count active sessions failed", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"totalMessages":    counts.Total,
		"inboundMessages":  counts.Inbound,
		"outboundMessages": counts.Outbound,
		"totalSessions":    total,
		"activeSessions":   active,
	})
}

func (h *AdminChatbotHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	phone := messaging.NormalizeWAID(chi.URLParam(r, "phoneNumber"))
	sess, err := h.manager.Reset(r.Context(), phone)
	if err != nil {
		h.logger.Error("reset session failed", "phone", phone, "error", err)
		http.Error(w, "failed to reset session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Session reset successfully",
		"phoneNumber": phone,
		"session":     sess,
	})
}

func (h *AdminChatbotHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	phone := messaging.NormalizeWAID(chi.URLParam(r, "phoneNumber"))
	if err := h.manager.EndSession(r.Context(), phone); err != nil {
		h.logger.Error("end session failed", "phone", phone, "error", err)
		http.Error(w, "failed to end session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Session ended",
		"phoneNumber": phone,
	})
}

// UpdatePreferences stores the raw request body as the preferences blob. The
// body must be valid JSON.
func (h *AdminChatbotHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	phone := messaging.NormalizeWAID(chi.URLParam(r, "phoneNumber"))
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil || !json.Valid(raw) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sess, err := h.manager.UpdatePreferences(r.Context(), phone, string(raw))
	if err != nil {
		h.logger.Error("update preferences failed", "phone", phone, "error", err)
		http.Error(w, "failed to update preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *AdminChatbotHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "UP",
		"timestamp": h.now().UnixMilli(),
		"service":   "WhatsApp Chatbot API",
		"mode":      h.sender.Mode(),
	})
}

func formValue(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return r.PostFormValue(key)
}

// splitList accepts both repeated parameters and a comma separated value.
func splitList(r *http.Request, key string) []string {
	_ = r.ParseForm()
	var out []string
	for _, v := range r.Form[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
