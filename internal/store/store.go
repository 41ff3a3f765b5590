// Package store provides storage backends for ResellerBot.
//
// SQLite and PostgreSQL share one SQL implementation; only the connection
// setup, the placeholder style and the embedded migrations differ.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

// Store is the repository the bot engine, the reminder dispatcher and the
// API read and write through.
type Store interface {
	MenuRepo
	SessionRepo
	MessageLogRepo
	ReminderRepo
	AccountRepo
	DedupRepo
	Close() error
}

// MenuRepo holds the per-tenant menu tree and bot configuration.
type MenuRepo interface {
	GetMenuByKey(ctx context.Context, tenantID, menuKey string) (*models.Menu, error)
	ListChildMenus(ctx context.Context, tenantID, parentKey string) ([]models.Menu, error)
	ListActiveOptions(ctx context.Context, tenantID, menuID string) ([]models.Option, error)
	ListActiveTriggers(ctx context.Context, tenantID string) ([]models.Trigger, error)
	ListVariables(ctx context.Context, tenantID string) ([]models.Variable, error)
	GetBotSettings(ctx context.Context, tenantID string) (*models.BotSettings, error)

	SaveMenu(ctx context.Context, m *models.Menu) error
	DeleteMenu(ctx context.Context, tenantID, menuKey string) error
	SaveOption(ctx context.Context, tenantID string, o *models.Option) error
	SaveTrigger(ctx context.Context, t *models.Trigger) error
	SaveVariable(ctx context.Context, v *models.Variable) error
	SaveBotSettings(ctx context.Context, s models.BotSettings) error
}

// SessionRepo persists conversation sessions.
type SessionRepo interface {
	GetSession(ctx context.Context, tenantID, userID string) (*models.Session, error)
	SaveSession(ctx context.Context, s models.Session) error
	DeleteSession(ctx context.Context, tenantID, userID string) error
}

// MessageLogRepo stores conversation history.
type MessageLogRepo interface {
	LogMessage(ctx context.Context, e models.MessageLogEntry) error
	ListMessageLog(ctx context.Context, tenantID, userID string, limit int) ([]models.MessageLogEntry, error)
}

// DueQuery selects reminders ready for dispatch. An empty TenantID means all tenants.
type DueQuery struct {
	TenantID string
	Date     string // YYYY-MM-DD
	Time     string // HH:MM, inclusive
	Modes    []models.SendMode
}

// ReminderRepo persists billing reminders and their templates.
type ReminderRepo interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, id string) (*models.Reminder, error)
	ListDueReminders(ctx context.Context, q DueQuery) ([]models.Reminder, error)
	// UpdateReminderStatus applies a transition out of scheduled. It reports
	// false when the reminder was no longer scheduled.
	UpdateReminderStatus(ctx context.Context, id string, status models.ReminderStatus, sentAt *time.Time, errMsg string) (bool, error)
	CancelReminder(ctx context.Context, id string) error
	GetReminderTemplate(ctx context.Context, id string) (*models.ReminderTemplate, error)
	SaveReminderTemplate(ctx context.Context, t *models.ReminderTemplate) error
}

// AccountRepo holds clients, tenant profiles and messaging instances.
type AccountRepo interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
	SaveClient(ctx context.Context, c *models.Client) error
	GetTenantProfile(ctx context.Context, tenantID string) (*models.TenantProfile, error)
	SaveTenantProfile(ctx context.Context, p models.TenantProfile) error
	GetMessagingInstance(ctx context.Context, tenantID string) (*models.MessagingInstance, error)
	GetMessagingInstanceByName(ctx context.Context, instanceName string) (*models.MessagingInstance, error)
	SaveMessagingInstance(ctx context.Context, i *models.MessagingInstance) error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for the store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open creates the store matching the DSN type.
func Open(dsn string) (Store, error) {
	if DetectDSNType(dsn) == "postgres" {
		s, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return s, nil
}
