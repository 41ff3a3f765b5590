package messaging

import (
	"context"

	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/twiliowhatsapp"
)

// TwilioService sends text through Twilio. Lists are delivered by the
// Router as their text rendering.
type TwilioService struct {
	client twiliowhatsapp.Sender
}

// NewTwilioService wraps a Twilio client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// SendText implements Sender.
func (s *TwilioService) SendText(ctx context.Context, inst *models.MessagingInstance, to, body string) error {
	number, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, number, body)
}
