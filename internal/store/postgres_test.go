package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS menus").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := newPostgresStoreFromDB(db)
	if err != nil {
		t.Fatalf("newPostgresStoreFromDB: %v", err)
	}
	return s, mock
}

func TestRebind(t *testing.T) {
	pg := &sqlStore{numbered: true}
	if got := pg.rebind("a = ? AND b IN (?, ?)"); got != "a = $1 AND b IN ($2, $3)" {
		t.Errorf("rebind() = %q", got)
	}
	lite := &sqlStore{}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	if got := placeholders(3); got != "?, ?, ?" {
		t.Errorf("placeholders(3) = %q", got)
	}
}

func TestPostgresStore_UpdateReminderStatusGuardsScheduled(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()
	query := regexp.QuoteMeta("UPDATE billing_reminders SET status = $1, sent_at = $2, error_message = $3, updated_at = $4 WHERE id = $5 AND status = $6")

	mock.ExpectExec(query).
		WithArgs("failed", nil, "boom", sqlmock.AnyArg(), "r1", "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("failed", nil, "boom", sqlmock.AnyArg(), "r1", "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.UpdateReminderStatus(ctx, "r1", models.ReminderStatusFailed, nil, "boom")
	if err != nil || !ok {
		t.Fatalf("first update = %v, %v", ok, err)
	}
	ok, err = s.UpdateReminderStatus(ctx, "r1", models.ReminderStatusFailed, nil, "boom")
	if err != nil || ok {
		t.Errorf("second update = %v, %v; want false", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_GetSessionNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bot_sessions WHERE tenant_id = $1 AND user_id = $2")).
		WithArgs("t1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "user_id", "current_menu_key", "navigation_stack", "locked", "state", "created_at", "updated_at"}))

	got, err := s.GetSession(context.Background(), "t1", "u1")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil; got %v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_ListDueReminders(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()
	cols := []string{"id", "tenant_id", "client_id", "template_id", "message", "edited_message", "scheduled_date", "scheduled_time",
		"reminder_type", "send_mode", "status", "sent_at", "error_message", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("send_mode IN ($4, $5) AND tenant_id = $6 ORDER BY scheduled_time, created_at")).
		WithArgs("scheduled", "2026-03-01", "09:30", "auto", "push_only", "t1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "t1", "c1", nil, "Olá {nome}", nil, "2026-03-01", "09:00", "vencimento", "auto", "scheduled", nil, nil, now, now))

	list, err := s.ListDueReminders(context.Background(), DueQuery{
		TenantID: "t1",
		Date:     "2026-03-01",
		Time:     "09:30",
		Modes:    []models.SendMode{models.SendModeAuto, models.SendModePushOnly},
	})
	if err != nil {
		t.Fatalf("ListDueReminders: %v", err)
	}
	if len(list) != 1 || list[0].ID != "r1" || list[0].SendMode != models.SendModeAuto || list[0].SentAt != nil || list[0].TemplateID != "" {
		t.Errorf("unexpected reminders %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_RecordInbound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inbound_dedup (message_id, sender_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING")).
		WithArgs("m1", "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.RecordInbound(context.Background(), "m1", "u1")
	if err != nil || inserted {
		t.Errorf("expected duplicate (false, nil), got %v, %v", inserted, err)
	}
}

func TestPostgresStore_ForgetInbound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM inbound_dedup WHERE message_id = $1 AND processed_at IS NULL")).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ForgetInbound(context.Background(), "m1"); err != nil {
		t.Errorf("ForgetInbound: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
