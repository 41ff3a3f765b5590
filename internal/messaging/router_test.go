package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/testutil"
	"github.com/BTreeMap/ResellerBot/internal/twiliowhatsapp"
)

func sampleListReply() models.Reply {
	list := models.InteractiveList{
		Title:      "Menu",
		ButtonText: "Ver opções",
		Sections: []models.ListSection{{
			Title: "Opções",
			Rows:  []models.ListRow{{Title: "Planos", RowID: "planos"}},
		}},
	}
	return models.ListReply(list, "Menu\n1 - Planos")
}

func TestRouter_DefaultsToEvolution(t *testing.T) {
	r := NewRouter(0)
	fake := &testutil.FakeSender{}
	r.Register(models.ProviderEvolution, fake)

	inst := &models.MessagingInstance{InstanceName: "loja"}
	if err := r.SendText(context.Background(), inst, "5511999990000", "oi"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if fake.TextCount() != 1 {
		t.Fatalf("expected 1 text, got %d", fake.TextCount())
	}
}

func TestRouter_UnknownProvider(t *testing.T) {
	r := NewRouter(0)
	inst := &models.MessagingInstance{Provider: models.ProviderTwilio}
	err := r.SendText(context.Background(), inst, "5511999990000", "oi")
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestRouter_DeliverList(t *testing.T) {
	r := NewRouter(0)
	fake := &testutil.FakeSender{}
	r.Register(models.ProviderEvolution, fake)

	inst := &models.MessagingInstance{InstanceName: "loja", Provider: models.ProviderEvolution}
	if err := r.Deliver(context.Background(), inst, "5511999990000", sampleListReply()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(fake.Lists) != 1 || fake.TextCount() != 0 {
		t.Fatalf("expected one list and no text, got lists=%d texts=%d", len(fake.Lists), fake.TextCount())
	}
}

func TestRouter_DeliverListFallsBackToText(t *testing.T) {
	r := NewRouter(0)
	mock := twiliowhatsapp.NewMockClient()
	r.Register(models.ProviderTwilio, NewTwilioService(mock))

	inst := &models.MessagingInstance{Provider: models.ProviderTwilio}
	if err := r.Deliver(context.Background(), inst, "+55 11 99999-0000", sampleListReply()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if got := mock.SentMessages[0]; got.To != "5511999990000" || got.Body != "Menu\n1 - Planos" {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestRouter_DeliverEmptyReply(t *testing.T) {
	r := NewRouter(0)
	fake := &testutil.FakeSender{}
	r.Register(models.ProviderEvolution, fake)

	if err := r.Deliver(context.Background(), &models.MessagingInstance{}, "5511999990000", models.Reply{}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if fake.TextCount() != 0 || len(fake.Lists) != 0 {
		t.Errorf("empty reply should send nothing")
	}
}

func TestRouter_SendError(t *testing.T) {
	r := NewRouter(0)
	boom := errors.New("provider down")
	r.Register(models.ProviderEvolution, &testutil.FakeSender{Err: boom})

	err := r.Deliver(context.Background(), &models.MessagingInstance{}, "5511999990000", models.TextReply("oi"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
