package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/audit"
	"github.com/BTreeMap/ResellerBot/internal/bot"
	"github.com/BTreeMap/ResellerBot/internal/listmsg"
	"github.com/BTreeMap/ResellerBot/internal/lock"
	"github.com/BTreeMap/ResellerBot/internal/metrics"
	"github.com/BTreeMap/ResellerBot/internal/models"
)

// DefaultTurnLockTTL bounds how long one conversation turn may hold its session lock.
const DefaultTurnLockTTL = 30 * time.Second

// Reasons an inbound message never reaches the engine.
const (
	DropNoTenant      = "no_tenant"
	DropInvalidSender = "invalid_sender"
	DropEmptyBody     = "empty_body"
	DropDuplicate     = "duplicate"
	DropBusy          = "session_busy"
)

// Repository is the storage the inbound pipeline reads and writes.
type Repository interface {
	GetSession(ctx context.Context, tenantID, userID string) (*models.Session, error)
	SaveSession(ctx context.Context, s models.Session) error
	RecordInbound(ctx context.Context, messageID, senderID string) (bool, error)
	ForgetInbound(ctx context.Context, messageID string) error
	MarkProcessed(ctx context.Context, messageID string) error
	GetMessagingInstance(ctx context.Context, tenantID string) (*models.MessagingInstance, error)
	GetMessagingInstanceByName(ctx context.Context, instanceName string) (*models.MessagingInstance, error)
}

// Engine runs one conversation turn.
type Engine interface {
	Process(ctx context.Context, tenantID string, session *models.Session, userID, message string) (bot.Result, error)
}

// Deliverer sends a bot reply through a messaging instance.
type Deliverer interface {
	Deliver(ctx context.Context, inst *models.MessagingInstance, to string, reply models.Reply) error
}

var (
	_ Engine    = (*bot.Engine)(nil)
	_ Deliverer = (*Router)(nil)
	_ Sender    = (*Router)(nil)
)

// TurnReport describes what happened to one inbound message.
type TurnReport struct {
	TenantID  string
	UserID    string
	Dropped   string // non-empty when the message never reached the engine
	Outcome   bot.Outcome
	Reply     models.Reply
	Delivered bool
}

// HandlerOpts configures a ResponseHandler.
type HandlerOpts struct {
	SessionTTL time.Duration
	Locker     lock.Locker
	LockTTL    time.Duration
	Audit      audit.Sink
	Clock      func() time.Time
}

// HandlerOption is a functional option for NewResponseHandler.
type HandlerOption func(*HandlerOpts)

// WithSessionTTL restarts sessions idle longer than ttl at the root menu.
func WithSessionTTL(ttl time.Duration) HandlerOption {
	return func(o *HandlerOpts) { o.SessionTTL = ttl }
}

// WithLocker serializes turns of the same conversation through l.
func WithLocker(l lock.Locker) HandlerOption {
	return func(o *HandlerOpts) { o.Locker = l }
}

// WithLockTTL overrides DefaultTurnLockTTL.
func WithLockTTL(ttl time.Duration) HandlerOption {
	return func(o *HandlerOpts) { o.LockTTL = ttl }
}

// WithAudit records inbound and outbound messages in sink.
func WithAudit(sink audit.Sink) HandlerOption {
	return func(o *HandlerOpts) { o.Audit = sink }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) HandlerOption {
	return func(o *HandlerOpts) { o.Clock = clock }
}

// ResponseHandler turns inbound messages into bot replies: it deduplicates,
// serializes turns per conversation, runs the engine, persists the session
// and delivers the reply.
type ResponseHandler struct {
	repo   Repository
	engine Engine
	out    Deliverer
	opts   HandlerOpts
}

// NewResponseHandler creates a handler. Without WithLocker turns are
// serialized by an in-process locker.
func NewResponseHandler(repo Repository, engine Engine, out Deliverer, opts ...HandlerOption) *ResponseHandler {
	cfg := HandlerOpts{LockTTL: DefaultTurnLockTTL, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocalLocker()
	}
	return &ResponseHandler{repo: repo, engine: engine, out: out, opts: cfg}
}

func drop(report TurnReport, reason string) TurnReport {
	report.Dropped = reason
	metrics.InboundDropped.WithLabelValues(reason).Inc()
	return report
}

// ProcessMessage handles one inbound message. Dropped messages return a
// report with Dropped set; errors are returned for storage and delivery
// failures.
func (h *ResponseHandler) ProcessMessage(ctx context.Context, in models.InboundMessage) (TurnReport, error) {
	var report TurnReport

	inst, err := h.resolveInstance(ctx, &in)
	if err != nil {
		return report, err
	}
	if in.TenantID == "" {
		slog.Warn("ResponseHandler inbound without tenant", "instance", in.InstanceName, "from", in.From)
		return drop(report, DropNoTenant), nil
	}
	report.TenantID = in.TenantID

	userID, err := CanonicalizePhone(in.From)
	if err != nil {
		slog.Warn("ResponseHandler invalid sender", "error", err, "tenantID", in.TenantID)
		return drop(report, DropInvalidSender), nil
	}
	report.UserID = userID

	body := strings.TrimSpace(in.Body)
	if body == "" {
		slog.Debug("ResponseHandler empty body ignored", "tenantID", in.TenantID, "userID", userID)
		return drop(report, DropEmptyBody), nil
	}

	held, err := h.opts.Locker.Acquire(ctx, lock.SessionKey(in.TenantID, userID), h.opts.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		slog.Warn("ResponseHandler session busy, dropping turn", "tenantID", in.TenantID, "userID", userID)
		return drop(report, DropBusy), nil
	}
	if err != nil {
		return report, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	defer func() {
		if err := held.Release(ctx); err != nil {
			slog.Warn("ResponseHandler session lock release failed", "error", err, "userID", userID)
		}
	}()

	// The dedup record is only kept once the session has been saved, so a
	// redelivery after a failed turn runs again.
	saved := false
	if in.MessageID != "" {
		fresh, err := h.repo.RecordInbound(ctx, in.MessageID, userID)
		if err != nil {
			slog.Warn("ResponseHandler dedup record failed, processing anyway", "error", err, "messageID", in.MessageID)
		} else if !fresh {
			slog.Warn("ResponseHandler duplicate inbound dropped", "messageID", in.MessageID, "userID", userID)
			return drop(report, DropDuplicate), nil
		}
		defer func() {
			if saved {
				return
			}
			if err := h.repo.ForgetInbound(ctx, in.MessageID); err != nil {
				slog.Warn("ResponseHandler failed to forget inbound after failed turn", "error", err, "messageID", in.MessageID)
			}
		}()
	}

	h.record(ctx, models.MessageLogEntry{
		TenantID:  in.TenantID,
		UserID:    userID,
		Direction: models.DirectionInbound,
		Body:      body,
		MessageID: in.MessageID,
	})

	session, err := h.repo.GetSession(ctx, in.TenantID, userID)
	if err != nil {
		return report, fmt.Errorf("failed to load session: %w", err)
	}
	if session != nil && session.Expired(h.opts.Clock(), h.opts.SessionTTL) {
		slog.Info("ResponseHandler session expired, restarting", "tenantID", in.TenantID, "userID", userID, "lastActivity", session.UpdatedAt)
		session = nil
	}

	res, err := h.engine.Process(ctx, in.TenantID, session, userID, body)
	if err != nil {
		return report, fmt.Errorf("engine failed: %w", err)
	}
	report.Outcome = res.Outcome
	report.Reply = res.Reply
	metrics.BotTurns.WithLabelValues(string(res.Outcome)).Inc()

	if err := h.repo.SaveSession(ctx, res.Session); err != nil {
		return report, fmt.Errorf("failed to save session: %w", err)
	}
	saved = true
	slog.Debug("ResponseHandler turn complete", "tenantID", in.TenantID, "userID", userID, "outcome", res.Outcome, "menu", res.Session.CurrentMenuKey, "state", res.Session.State)

	if !res.Reply.IsEmpty() {
		if inst == nil {
			slog.Warn("ResponseHandler no messaging instance for reply", "tenantID", in.TenantID, "userID", userID)
		} else {
			if err := h.out.Deliver(ctx, inst, userID, res.Reply); err != nil {
				slog.Error("ResponseHandler reply delivery failed", "error", err, "tenantID", in.TenantID, "userID", userID)
				return report, fmt.Errorf("failed to deliver reply: %w", err)
			}
			report.Delivered = true
			h.recordReply(ctx, in.TenantID, userID, res.Reply)
		}
	}

	if in.MessageID != "" {
		if err := h.repo.MarkProcessed(ctx, in.MessageID); err != nil {
			slog.Warn("ResponseHandler mark processed failed", "error", err, "messageID", in.MessageID)
		}
	}
	return report, nil
}

// resolveInstance finds the instance the message arrived on and fills in
// the tenant when only the instance name is known. Embedded providers with
// no stored instance get a connected placeholder.
func (h *ResponseHandler) resolveInstance(ctx context.Context, in *models.InboundMessage) (*models.MessagingInstance, error) {
	var inst *models.MessagingInstance
	var err error
	if in.InstanceName != "" {
		inst, err = h.repo.GetMessagingInstanceByName(ctx, in.InstanceName)
	} else if in.TenantID != "" {
		inst, err = h.repo.GetMessagingInstance(ctx, in.TenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load messaging instance: %w", err)
	}
	if inst != nil && in.TenantID == "" {
		in.TenantID = inst.TenantID
	}
	if inst == nil && in.TenantID != "" && in.Provider != "" && in.Provider != models.ProviderEvolution {
		inst = &models.MessagingInstance{
			TenantID:     in.TenantID,
			InstanceName: in.InstanceName,
			Provider:     in.Provider,
			Status:       models.InstanceStatusConnected,
		}
	}
	return inst, nil
}

func (h *ResponseHandler) recordReply(ctx context.Context, tenantID, userID string, reply models.Reply) {
	body := reply.Text
	if reply.Type == models.ReplyTypeList {
		encoded, err := listmsg.Encode(reply)
		if err != nil {
			slog.Warn("ResponseHandler failed to encode reply for history", "error", err)
		} else {
			body = encoded
		}
	}
	h.record(ctx, models.MessageLogEntry{
		TenantID:  tenantID,
		UserID:    userID,
		Direction: models.DirectionOutbound,
		Body:      body,
	})
}

func (h *ResponseHandler) record(ctx context.Context, e models.MessageLogEntry) {
	if h.opts.Audit == nil {
		return
	}
	if err := h.opts.Audit.Record(ctx, e); err != nil {
		slog.Warn("ResponseHandler audit record failed", "error", err, "direction", e.Direction, "userID", e.UserID)
	}
}

// Start consumes inbound messages until ctx is done or the channel closes.
func (h *ResponseHandler) Start(ctx context.Context, inbound <-chan models.InboundMessage) {
	slog.Info("ResponseHandler started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("ResponseHandler stopping", "reason", ctx.Err())
			return
		case in, ok := <-inbound:
			if !ok {
				slog.Info("ResponseHandler inbound channel closed")
				return
			}
			if _, err := h.ProcessMessage(ctx, in); err != nil {
				slog.Error("ResponseHandler failed to process inbound message", "error", err, "tenantID", in.TenantID, "from", in.From)
			}
		}
	}
}
