package messaging

import (
	"context"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
)

// MockSender accepts every payload and echoes it back. It performs no I/O and
// the echo depends only on the payload.
type MockSender struct{}

func NewMockSender() *MockSender { return &MockSender{} }

func (MockSender) Mode() string { return ModeMock }

func (MockSender) Send(_ context.Context, msg whatsapp.OutboundMessage) (SendResult, error) {
	return SendResult{
		Response: map[string]any{
			"to":      msg.To,
			"message": msg.Body(),
			"type":    msg.ContentType(),
			"status":  string(StatusSent),
			"mock":    true,
		},
	}, nil
}
