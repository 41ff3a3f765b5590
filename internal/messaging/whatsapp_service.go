package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/whatsapp"
)

// Constants for WhatsAppService configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the inbound channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService sends through an embedded whatsmeow device and turns its
// events into inbound messages. The device belongs to a single tenant.
type WhatsAppService struct {
	client       whatsapp.Sender
	waClient     *whatsapp.Client
	tenantID     string
	instanceName string
	inbound      chan models.InboundMessage
}

// NewWhatsAppService wraps client. Inbound messages are attributed to tenantID.
func NewWhatsAppService(client whatsapp.Sender, tenantID, instanceName string) *WhatsAppService {
	s := &WhatsAppService{
		client:       client,
		tenantID:     tenantID,
		instanceName: instanceName,
		inbound:      make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
	}
	return s
}

// SendText implements Sender.
func (s *WhatsAppService) SendText(ctx context.Context, inst *models.MessagingInstance, to, body string) error {
	number, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, number, body)
}

// SendInteractiveList implements ListSender.
func (s *WhatsAppService) SendInteractiveList(ctx context.Context, inst *models.MessagingInstance, to string, list models.InteractiveList) error {
	number, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return s.client.SendList(ctx, number, list)
}

// Inbound returns the channel of messages received by the device.
func (s *WhatsAppService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}

// Start registers the event handler on the device.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
		return nil
	}
	if s.tenantID == "" {
		return fmt.Errorf("whatsapp service requires a tenant ID for inbound messages")
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleMessage(msg)
		}
	})
	slog.Info("WhatsAppService event handler registered", "tenantID", s.tenantID)
	return nil
}

func (s *WhatsAppService) handleMessage(evt *events.Message) {
	in, ok := whatsapp.InboundFromEvent(evt)
	if !ok {
		return
	}
	s.emit(in)
}

func (s *WhatsAppService) emit(in models.InboundMessage) {
	in.TenantID = s.tenantID
	in.InstanceName = s.instanceName
	select {
	case s.inbound <- in:
		slog.Debug("WhatsAppService inbound message forwarded", "from", in.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService inbound channel blocked, dropping message", "from", in.From, "timeout", DefaultChannelTimeout)
	}
}
