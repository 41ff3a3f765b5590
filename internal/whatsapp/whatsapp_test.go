package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

func TestOptions(t *testing.T) {
	opts := &Opts{}
	WithDBDSN("/var/lib/resellerbot/test.db")(opts)
	WithQRCodeOutput("/tmp/qr.txt")(opts)
	WithNumericCode()(opts)

	if opts.DBDSN != "/var/lib/resellerbot/test.db" {
		t.Errorf("Expected DBDSN to be set, got %q", opts.DBDSN)
	}
	if opts.QRPath != "/tmp/qr.txt" {
		t.Errorf("Expected QRPath to be set, got %q", opts.QRPath)
	}
	if !opts.NumericCode {
		t.Errorf("Expected NumericCode to be true, got false")
	}
}

func TestToListMessage(t *testing.T) {
	list := models.InteractiveList{
		Title:       "Menu",
		Description: "Escolha",
		ButtonText:  "Ver opções",
		Sections: []models.ListSection{
			{Title: "Planos", Rows: []models.ListRow{
				{Title: "Básico", Description: "1 tela", RowID: "plano_basico"},
				{Title: "Premium", RowID: "plano_premium"},
			}},
		},
	}

	msg := ToListMessage(list)
	if msg.GetTitle() != "Menu" || msg.GetButtonText() != "Ver opções" || msg.GetListType() != waE2E.ListMessage_SINGLE_SELECT {
		t.Errorf("unexpected envelope %+v", msg)
	}
	if msg.FooterText != nil {
		t.Error("empty footer should be omitted")
	}
	if len(msg.GetSections()) != 1 || len(msg.GetSections()[0].GetRows()) != 2 {
		t.Fatalf("unexpected sections %+v", msg.GetSections())
	}
	rows := msg.GetSections()[0].GetRows()
	if rows[0].GetRowID() != "plano_basico" || rows[0].GetDescription() != "1 tela" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Description != nil {
		t.Error("empty row description should be omitted")
	}
}

func newEvent(msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID("5511999990000", types.DefaultUserServer),
			},
			ID:        "3EB0ABC",
			Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		Message: msg,
	}
}

func TestInboundFromEvent(t *testing.T) {
	in, ok := InboundFromEvent(newEvent(&waE2E.Message{Conversation: proto.String("oi")}))
	if !ok || in.From != "5511999990000" || in.Body != "oi" || in.MessageID != "3EB0ABC" || in.Provider != models.ProviderWhatsmeow {
		t.Errorf("conversation = %+v, %v", in, ok)
	}

	in, ok = InboundFromEvent(newEvent(&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("menu")}}))
	if !ok || in.Body != "menu" {
		t.Errorf("extended text = %+v, %v", in, ok)
	}

	in, ok = InboundFromEvent(newEvent(&waE2E.Message{ListResponseMessage: &waE2E.ListResponseMessage{
		SingleSelectReply: &waE2E.ListResponseMessage_SingleSelectReply{SelectedRowID: proto.String("__nav_back__")},
	}}))
	if !ok || in.Body != "__nav_back__" {
		t.Errorf("list reply = %+v, %v", in, ok)
	}
}

func TestInboundFromEventIgnores(t *testing.T) {
	own := newEvent(&waE2E.Message{Conversation: proto.String("oi")})
	own.Info.IsFromMe = true
	group := newEvent(&waE2E.Message{Conversation: proto.String("oi")})
	group.Info.IsGroup = true

	cases := map[string]*events.Message{
		"nil":     nil,
		"own":     own,
		"group":   group,
		"image":   newEvent(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}),
		"no body": newEvent(nil),
		"empty":   newEvent(&waE2E.Message{Conversation: proto.String("")}),
	}
	for name, evt := range cases {
		if _, ok := InboundFromEvent(evt); ok {
			t.Errorf("%s: expected event to be ignored", name)
		}
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()
	if err := m.SendMessage(ctx, "551199", "oi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := m.SendList(ctx, "551199", models.InteractiveList{Title: "x"}); err != nil {
		t.Fatalf("SendList: %v", err)
	}
	if len(m.Messages) != 1 || len(m.Lists) != 1 {
		t.Errorf("recorded %d messages, %d lists", len(m.Messages), len(m.Lists))
	}
	m.Err = errors.New("offline")
	if err := m.SendMessage(ctx, "551199", "oi"); err == nil {
		t.Error("expected configured error")
	}
}

func TestClientRejectsUninitialized(t *testing.T) {
	c := &Client{}
	if err := c.SendMessage(context.Background(), "551199", "oi"); err == nil {
		t.Error("expected error from uninitialized client")
	}
	if err := c.SendList(context.Background(), "551199", models.InteractiveList{}); err == nil {
		t.Error("expected error from uninitialized client")
	}
}
