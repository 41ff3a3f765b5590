package twiliowhatsapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestClient_SendMessage(t *testing.T) {
	api := &fakeCreator{}
	c := NewClientWithAPI(api, "+14155238886")

	if err := c.SendMessage(context.Background(), "5511999990000", "Olá"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 call, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "whatsapp:+5511999990000" || *p.From != "whatsapp:+14155238886" || *p.Body != "Olá" {
		t.Errorf("unexpected params to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestClient_SendMessageError(t *testing.T) {
	c := NewClientWithAPI(&fakeCreator{err: errors.New("21211 invalid To")}, "whatsapp:+14155238886")
	if err := c.SendMessage(context.Background(), "123", "x"); err == nil {
		t.Error("expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeCreator{}
	if err := NewClientWithAPI(api, "+1").SendMessage(ctx, "123", "x"); err == nil || len(api.params) != 0 {
		t.Error("cancelled context should not reach Twilio")
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+1415")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseWebhook(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+5511999990000"}, "Body": {"1"}, "MessageSid": {"SM9"}}
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	in, err := ParseWebhook(req)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if in.From != "5511999990000" || in.Body != "1" || in.MessageID != "SM9" {
		t.Errorf("unexpected inbound %+v", in)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader("From=whatsapp%3A%2B55"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, err := ParseWebhook(req); err == nil {
		t.Error("expected error for missing body")
	}
}

func TestMockClient_SendMessage(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendMessage(context.Background(), "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("unexpected messages %+v", mock.SentMessages)
	}
}
