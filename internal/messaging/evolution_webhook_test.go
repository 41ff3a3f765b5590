package messaging

import (
	"testing"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

func TestParseEvolutionWebhook(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantBody string
	}{
		{
			name:     "conversation",
			body:     `{"event":"messages.upsert","instance":"loja","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net","fromMe":false,"id":"ABC"},"message":{"conversation":"oi"},"messageTimestamp":1772366400}}`,
			wantOK:   true,
			wantBody: "oi",
		},
		{
			name:     "upper case event with extended text",
			body:     `{"event":"MESSAGES_UPSERT","instance":"loja","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net","id":"ABD"},"message":{"extendedTextMessage":{"text":"planos"}}}}`,
			wantOK:   true,
			wantBody: "planos",
		},
		{
			name:     "list reply",
			body:     `{"event":"messages.upsert","instance":"loja","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net","id":"ABE"},"message":{"listResponseMessage":{"singleSelectReply":{"selectedRowId":"suporte"}}}}}`,
			wantOK:   true,
			wantBody: "suporte",
		},
		{
			name: "own message",
			body: `{"event":"messages.upsert","instance":"loja","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net","fromMe":true,"id":"X"},"message":{"conversation":"oi"}}}`,
		},
		{
			name: "group message",
			body: `{"event":"messages.upsert","instance":"loja","data":{"key":{"remoteJid":"120363@g.us","id":"X"},"message":{"conversation":"oi"}}}`,
		},
		{
			name: "other event",
			body: `{"event":"connection.update","instance":"loja","data":{"state":"open"}}`,
		},
		{
			name: "media without text",
			body: `{"event":"messages.upsert","instance":"loja","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net","id":"X"},"message":{}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok, err := ParseEvolutionWebhook([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseEvolutionWebhook failed: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if in.Body != tt.wantBody || in.From != testPhone || in.InstanceName != "loja" || in.Provider != models.ProviderEvolution {
				t.Errorf("unexpected inbound %+v", in)
			}
			if in.MessageID == "" {
				t.Error("expected message id")
			}
		})
	}
}

func TestParseEvolutionWebhookInvalidJSON(t *testing.T) {
	if _, _, err := ParseEvolutionWebhook([]byte(`{`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
