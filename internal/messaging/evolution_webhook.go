package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

// EvolutionWebhook is the envelope Evolution API posts for instance events.
type EvolutionWebhook struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type evolutionMessageData struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ListResponseMessage struct {
			SingleSelectReply struct {
				SelectedRowID string `json:"selectedRowId"`
			} `json:"singleSelectReply"`
		} `json:"listResponseMessage"`
	} `json:"message"`
	MessageTimestamp int64 `json:"messageTimestamp"`
}

// IsMessageUpsert reports whether the event carries a new message. Evolution
// spells the event either "messages.upsert" or "MESSAGES_UPSERT".
func (w EvolutionWebhook) IsMessageUpsert() bool {
	return strings.ReplaceAll(strings.ToLower(w.Event), "_", ".") == "messages.upsert"
}

// ParseEvolutionWebhook maps a messages.upsert payload to an inbound message.
// It reports false for other events, own messages, group chats and messages
// without text.
func ParseEvolutionWebhook(body []byte) (models.InboundMessage, bool, error) {
	var hook EvolutionWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return models.InboundMessage{}, false, fmt.Errorf("invalid evolution webhook: %w", err)
	}
	if !hook.IsMessageUpsert() || len(hook.Data) == 0 {
		return models.InboundMessage{}, false, nil
	}
	var data evolutionMessageData
	if err := json.Unmarshal(hook.Data, &data); err != nil {
		return models.InboundMessage{}, false, fmt.Errorf("invalid evolution message data: %w", err)
	}
	if data.Key.FromMe || !strings.HasSuffix(data.Key.RemoteJid, "@s.whatsapp.net") {
		return models.InboundMessage{}, false, nil
	}

	text := data.Message.ListResponseMessage.SingleSelectReply.SelectedRowID
	if text == "" {
		text = data.Message.Conversation
	}
	if text == "" {
		text = data.Message.ExtendedTextMessage.Text
	}
	if text == "" {
		return models.InboundMessage{}, false, nil
	}

	received := time.Now().UTC()
	if data.MessageTimestamp > 0 {
		received = time.Unix(data.MessageTimestamp, 0).UTC()
	}
	return models.InboundMessage{
		From:         strings.TrimSuffix(data.Key.RemoteJid, "@s.whatsapp.net"),
		Body:         text,
		MessageID:    data.Key.ID,
		InstanceName: hook.Instance,
		Provider:     models.ProviderEvolution,
		Time:         received,
	}, true, nil
}
