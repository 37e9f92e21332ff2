package messaging

import (
	"context"
	"fmt"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
)

type graphClient interface {
	Send(ctx context.Context, msg whatsapp.OutboundMessage) (*whatsapp.SendResponse, map[string]any, error)
}

// LiveSender posts payloads through the Graph API client.
type LiveSender struct {
	client graphClient
}

func NewLiveSender(client graphClient) *LiveSender {
	if client == nil {
		panic("messaging: live sender requires a client")
	}
	return &LiveSender{client: client}
}

func (s *LiveSender) Mode() string { return ModeLive }

func (s *LiveSender) Send(ctx context.Context, msg whatsapp.OutboundMessage) (SendResult, error) {
	resp, raw, err := s.client.Send(ctx, msg)
	if err != nil {
		return SendResult{}, err
	}
	id := resp.MessageID()
	if id == "" {
		return SendResult{Response: raw}, fmt.Errorf("messaging: send accepted without message id")
	}
	return SendResult{ProviderMessageID: id, Response: raw}, nil
}
