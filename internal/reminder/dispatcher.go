// Package reminder dispatches billing reminders.
//
// A run selects the reminders due on the tenant-local calendar, delivers each
// one through WhatsApp or an operator push notification according to its
// send mode, and records exactly one terminal status per reminder. Records are
// processed one at a time; a failure on one record never stops the batch.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BTreeMap/ResellerBot/internal/lock"
	"github.com/BTreeMap/ResellerBot/internal/metrics"
	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/push"
	"github.com/BTreeMap/ResellerBot/internal/store"
	"github.com/BTreeMap/ResellerBot/internal/variables"
)

// Defaults applied by NewDispatcher.
const (
	DefaultLocation        = "America/Sao_Paulo"
	DefaultSendDelay       = time.Second
	DefaultOutboundTimeout = 15 * time.Second
	DefaultRunLockTTL      = 10 * time.Minute
)

// Failure reasons recorded on the reminder. They are shown to the tenant.
const (
	ReasonClientNotFound  = "Cliente não encontrado"
	ReasonNoAPIAccess     = "Plano sem acesso ao envio via API"
	ReasonNoChannel       = "Canal WhatsApp não configurado"
	ReasonInstanceBlocked = "Instância WhatsApp bloqueada"
	ReasonNotConnected    = "Instância WhatsApp não conectada"
	ReasonNoPhone         = "Cliente sem telefone cadastrado"
	ReasonEmptyMessage    = "Mensagem do lembrete vazia"
	ReasonInvalidSendMode = "Modo de envio inválido"
	reasonLookupFailed    = "Erro ao carregar dados"
	reasonSendFailed      = "Falha no envio"
	reasonPushFailed      = "Falha ao enviar notificação push"
	pushReminderTitle     = "Lembrete de cobrança"
	pushReminderSentTitle = "Lembrete enviado"
)

// AutoModes are the send modes picked up by the timer.
var AutoModes = []models.SendMode{models.SendModeAuto, models.SendModePushOnly}

// Repository is the data the dispatcher reads and the status it writes.
type Repository interface {
	GetReminder(ctx context.Context, id string) (*models.Reminder, error)
	ListDueReminders(ctx context.Context, q store.DueQuery) ([]models.Reminder, error)
	UpdateReminderStatus(ctx context.Context, id string, status models.ReminderStatus, sentAt *time.Time, errMsg string) (bool, error)
	GetReminderTemplate(ctx context.Context, id string) (*models.ReminderTemplate, error)
	GetClient(ctx context.Context, id string) (*models.Client, error)
	GetTenantProfile(ctx context.Context, tenantID string) (*models.TenantProfile, error)
	GetMessagingInstance(ctx context.Context, tenantID string) (*models.MessagingInstance, error)
	ListVariables(ctx context.Context, tenantID string) ([]models.Variable, error)
}

// Sender sends a WhatsApp text through a tenant's instance.
type Sender interface {
	SendText(ctx context.Context, inst *models.MessagingInstance, to, body string) error
}

// Opts holds dispatcher configuration.
type Opts struct {
	Location  *time.Location
	SendDelay time.Duration
	Timeout   time.Duration
	Locker    lock.Locker
	Clock     func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Opts)

// WithLocation sets the calendar used for the due query.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithSendDelay sets the pause between processed records. Zero disables it.
func WithSendDelay(d time.Duration) Option {
	return func(o *Opts) { o.SendDelay = d }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithLocker makes DispatchDue take a run lock so only one run is active
// across replicas.
func WithLocker(l lock.Locker) Option {
	return func(o *Opts) { o.Locker = l }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Dispatcher delivers billing reminders.
type Dispatcher struct {
	repo     Repository
	sender   Sender
	notifier push.Notifier
	loc      *time.Location
	limiter  *rate.Limiter
	timeout  time.Duration
	locker   lock.Locker
	clock    func() time.Time
}

// NewDispatcher creates a dispatcher. A nil notifier drops push notifications.
func NewDispatcher(repo Repository, sender Sender, notifier push.Notifier, opts ...Option) *Dispatcher {
	cfg := Opts{SendDelay: DefaultSendDelay, Timeout: DefaultOutboundTimeout, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOutboundTimeout
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultLocation)
		if err != nil {
			slog.Warn("reminder: failed to load default location, using UTC", "location", DefaultLocation, "error", err)
			loc = time.UTC
		}
		cfg.Location = loc
	}
	if notifier == nil {
		notifier = push.NopNotifier{}
	}
	limit := rate.Inf
	if cfg.SendDelay > 0 {
		limit = rate.Every(cfg.SendDelay)
	}
	return &Dispatcher{
		repo:     repo,
		sender:   sender,
		notifier: notifier,
		loc:      cfg.Location,
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  cfg.Timeout,
		locker:   cfg.Locker,
		clock:    cfg.Clock,
	}
}

// Result is the outcome of one reminder. Applied is false when the reminder
// left scheduled while it was being processed, so this run did not record
// its status.
type Result struct {
	ReminderID string                `json:"reminder_id"`
	Status     models.ReminderStatus `json:"status"`
	Error      string                `json:"error,omitempty"`
	Applied    bool                  `json:"applied"`
}

// Report summarizes one dispatcher run.
type Report struct {
	Date    string   `json:"date"`
	Time    string   `json:"time"`
	Due     int      `json:"due"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped bool     `json:"skipped,omitempty"`
	Results []Result `json:"results,omitempty"`
}

// DispatchDue processes every reminder due at now. When another run holds
// the run lock the report has Skipped set and nothing is processed.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (Report, error) {
	local := now.In(d.loc)
	report := Report{Date: local.Format(models.ScheduledDateLayout), Time: local.Format(models.ScheduledTimeLayout)}

	if d.locker != nil {
		held, err := d.locker.Acquire(ctx, lock.DispatchKey, DefaultRunLockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			slog.Info("reminder dispatch skipped, another run in progress", "date", report.Date, "time", report.Time)
			report.Skipped = true
			return report, nil
		}
		if err != nil {
			return report, err
		}
		defer func() {
			if err := held.Release(ctx); err != nil {
				slog.Warn("reminder dispatch lock release failed", "error", err)
			}
		}()
	}

	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	due, err := d.repo.ListDueReminders(ctx, store.DueQuery{Date: report.Date, Time: report.Time, Modes: AutoModes})
	if err != nil {
		slog.Error("reminder dispatch: due query failed", "error", err, "date", report.Date, "time", report.Time)
		return report, fmt.Errorf("failed to list due reminders: %w", err)
	}
	report.Due = len(due)
	slog.Info("reminder dispatch started", "date", report.Date, "time", report.Time, "due", len(due))

	for _, r := range due {
		if err := d.limiter.Wait(ctx); err != nil {
			slog.Warn("reminder dispatch interrupted", "error", err, "processed", len(report.Results))
			return report, err
		}
		res := d.process(ctx, r)
		report.Results = append(report.Results, res)
		if !res.Applied {
			continue
		}
		switch res.Status {
		case models.ReminderStatusSent:
			report.Sent++
		case models.ReminderStatusFailed:
			report.Failed++
		}
	}
	slog.Info("reminder dispatch finished", "date", report.Date, "time", report.Time, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

// ForceSend processes one reminder immediately regardless of its date,
// time and send mode. Only scheduled reminders can be sent.
func (d *Dispatcher) ForceSend(ctx context.Context, id string) (Result, error) {
	r, err := d.repo.GetReminder(ctx, id)
	if err != nil {
		return Result{ReminderID: id}, err
	}
	if r == nil {
		return Result{ReminderID: id}, models.ErrReminderNotFound
	}
	if r.Status.IsTerminal() {
		return Result{ReminderID: id, Status: r.Status}, models.ErrReminderNotScheduled
	}
	slog.Info("reminder force send", "id", id, "mode", r.SendMode)
	return d.process(ctx, *r), nil
}

func (d *Dispatcher) process(ctx context.Context, r models.Reminder) Result {
	status, reason := d.deliver(ctx, r)

	var sentAt *time.Time
	if status == models.ReminderStatusSent {
		t := d.clock().UTC()
		sentAt = &t
	}
	res := Result{ReminderID: r.ID, Status: status, Error: reason}

	applied, err := d.repo.UpdateReminderStatus(ctx, r.ID, status, sentAt, reason)
	if err != nil {
		slog.Error("reminder status update failed", "error", err, "id", r.ID, "status", status)
		return res
	}
	res.Applied = applied
	if applied {
		metrics.RemindersProcessed.WithLabelValues(string(r.SendMode), string(status)).Inc()
		slog.Info("reminder processed", "id", r.ID, "tenantID", r.TenantID, "mode", r.SendMode, "status", status, "reason", reason)
	}
	return res
}

// deliver attempts the send and returns the terminal status with its reason.
func (d *Dispatcher) deliver(ctx context.Context, r models.Reminder) (models.ReminderStatus, string) {
	failed := models.ReminderStatusFailed

	client, err := d.repo.GetClient(ctx, r.ClientID)
	if err != nil {
		slog.Error("reminder: client lookup failed", "error", err, "id", r.ID, "clientID", r.ClientID)
		return failed, fmt.Sprintf("%s: %v", reasonLookupFailed, err)
	}
	if client == nil {
		return failed, ReasonClientNotFound
	}

	profile, err := d.repo.GetTenantProfile(ctx, r.TenantID)
	if err != nil {
		slog.Error("reminder: tenant profile lookup failed", "error", err, "id", r.ID, "tenantID", r.TenantID)
		return failed, fmt.Sprintf("%s: %v", reasonLookupFailed, err)
	}
	if profile == nil {
		profile = &models.TenantProfile{TenantID: r.TenantID}
	}

	vars := BuildVariables(client, profile)

	switch r.SendMode {
	case models.SendModePushOnly:
		return d.deliverPush(ctx, r, client, profile, vars)
	case models.SendModeAuto, models.SendModeManualAPI:
		return d.deliverWhatsApp(ctx, r, client, profile, vars)
	default:
		return failed, ReasonInvalidSendMode
	}
}

func (d *Dispatcher) deliverPush(ctx context.Context, r models.Reminder, client *models.Client, profile *models.TenantProfile, vars map[string]string) (models.ReminderStatus, string) {
	n := push.Notification{
		UserID: r.TenantID,
		Target: profile.PushTarget,
		Title:  pushReminderTitle,
		Body:   pushBody(client.Name, vars),
		Tag:    push.TagReminderPush,
		Data: map[string]string{
			"reminder_id": r.ID,
			"client_id":   client.ID,
			"phone":       client.Phone,
		},
	}
	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.notifier.Notify(pctx, n); err != nil {
		return models.ReminderStatusFailed, fmt.Sprintf("%s: %v", reasonPushFailed, err)
	}
	return models.ReminderStatusSent, ""
}

func (d *Dispatcher) deliverWhatsApp(ctx context.Context, r models.Reminder, client *models.Client, profile *models.TenantProfile, vars map[string]string) (models.ReminderStatus, string) {
	failed := models.ReminderStatusFailed

	if !profile.HasAPIAccess {
		return failed, ReasonNoAPIAccess
	}
	inst, err := d.repo.GetMessagingInstance(ctx, r.TenantID)
	if err != nil {
		slog.Error("reminder: instance lookup failed", "error", err, "id", r.ID, "tenantID", r.TenantID)
		return failed, fmt.Sprintf("%s: %v", reasonLookupFailed, err)
	}
	if inst == nil {
		return failed, ReasonNoChannel
	}
	if inst.IsBlocked {
		return failed, ReasonInstanceBlocked
	}
	if !inst.Connected() {
		return failed, ReasonNotConnected
	}
	if strings.TrimSpace(client.Phone) == "" {
		return failed, ReasonNoPhone
	}

	message := ComposeMessage(r, d.templateBody(ctx, r), variables.Merge(d.tenantVariables(ctx, r.TenantID), vars))
	if strings.TrimSpace(message) == "" {
		return failed, ReasonEmptyMessage
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sender.SendText(sctx, inst, client.Phone, message); err != nil {
		slog.Error("reminder send failed", "error", err, "id", r.ID, "instance", inst.InstanceName)
		return failed, fmt.Sprintf("%s: %v", reasonSendFailed, err)
	}

	if profile.NotifyOnSent {
		n := push.Notification{
			UserID: r.TenantID,
			Target: profile.PushTarget,
			Title:  pushReminderSentTitle,
			Body:   fmt.Sprintf("Lembrete enviado para %s", client.Name),
			Tag:    push.TagReminderSent,
			Data:   map[string]string{"reminder_id": r.ID, "client_id": client.ID},
		}
		pctx, pcancel := context.WithTimeout(ctx, d.timeout)
		if err := d.notifier.Notify(pctx, n); err != nil {
			slog.Warn("reminder sent notification failed", "error", err, "id", r.ID)
		}
		pcancel()
	}
	return models.ReminderStatusSent, ""
}

// templateBody loads the template text when the reminder has no message.
func (d *Dispatcher) templateBody(ctx context.Context, r models.Reminder) string {
	if strings.TrimSpace(r.Message) != "" || r.TemplateID == "" {
		return ""
	}
	tpl, err := d.repo.GetReminderTemplate(ctx, r.TemplateID)
	if err != nil {
		slog.Warn("reminder: template lookup failed", "error", err, "id", r.ID, "templateID", r.TemplateID)
		return ""
	}
	if tpl == nil {
		slog.Warn("reminder: template not found", "id", r.ID, "templateID", r.TemplateID)
		return ""
	}
	return tpl.Body
}

func (d *Dispatcher) tenantVariables(ctx context.Context, tenantID string) map[string]string {
	vars, err := d.repo.ListVariables(ctx, tenantID)
	if err != nil {
		slog.Warn("reminder: tenant variables lookup failed", "error", err, "tenantID", tenantID)
		return nil
	}
	return models.VariableMap(vars)
}

// pushBody is the operator-facing summary of a push-only reminder.
func pushBody(name string, vars map[string]string) string {
	parts := []string{"Cobrar " + name}
	if v := vars[VarPlan]; v != "" {
		parts = append(parts, "plano "+v)
	}
	if v := vars[VarPrice]; v != "" {
		parts = append(parts, v)
	}
	if v := vars[VarExpiration]; v != "" {
		parts = append(parts, "vence em "+v)
	}
	return strings.Join(parts, " - ")
}
