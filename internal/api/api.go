package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/ResellerBot/internal/audit"
	"github.com/BTreeMap/ResellerBot/internal/bot"
	"github.com/BTreeMap/ResellerBot/internal/lock"
	"github.com/BTreeMap/ResellerBot/internal/messaging"
	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/push"
	"github.com/BTreeMap/ResellerBot/internal/reminder"
	"github.com/BTreeMap/ResellerBot/internal/scheduler"
	"github.com/BTreeMap/ResellerBot/internal/store"
	"github.com/BTreeMap/ResellerBot/internal/twiliowhatsapp"
	"github.com/BTreeMap/ResellerBot/internal/whatsapp"
)

// WhatsmeowInstanceName names the embedded device in inbound messages.
const WhatsmeowInstanceName = "whatsmeow"

// Config gathers the module options Run wires together.
type Config struct {
	DBDSN string

	EvolutionURL string
	EvolutionKey string

	WhatsAppEnabled  bool
	WhatsAppTenantID string
	WhatsAppOpts     []whatsapp.Option

	TwilioEnabled bool
	TwilioOpts    []twiliowhatsapp.Option

	RedisAddr     string
	RedisPassword string

	KafkaBrokers string
	KafkaTopic   string

	SNSRegion string

	ReminderLocation *time.Location
	ReminderCron     string
	SendDelay        time.Duration
	OutboundTimeout  time.Duration
	SessionTTL       time.Duration

	ServerOpts []Option
}

// Run opens the store, builds the senders, the conversation pipeline and the
// reminder dispatcher, starts the scheduler and serves HTTP until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	st, err := store.Open(cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	router := messaging.NewRouter(cfg.OutboundTimeout)
	if cfg.EvolutionURL != "" {
		router.Register(models.ProviderEvolution, messaging.NewEvolutionSender(cfg.EvolutionURL, cfg.EvolutionKey, nil))
		slog.Info("Evolution API sender enabled", "url", cfg.EvolutionURL)
	}
	if cfg.TwilioEnabled {
		tc, err := twiliowhatsapp.NewClient(cfg.TwilioOpts...)
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		router.Register(models.ProviderTwilio, messaging.NewTwilioService(tc))
		slog.Info("Twilio sender enabled")
	}

	locker, closeLocker, err := buildLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	sinks := audit.MultiSink{audit.NewStoreSink(st)}
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" {
		kafkaSink := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		slog.Info("Kafka message history enabled", "topic", cfg.KafkaTopic)
	}

	var notifier push.Notifier = push.NopNotifier{}
	if cfg.SNSRegion != "" {
		sns, err := push.NewSNSNotifier(ctx, cfg.SNSRegion)
		if err != nil {
			return fmt.Errorf("failed to create SNS notifier: %w", err)
		}
		notifier = sns
		slog.Info("SNS push notifications enabled", "region", cfg.SNSRegion)
	}

	handler := messaging.NewResponseHandler(st, bot.NewEngine(st), router,
		messaging.WithSessionTTL(cfg.SessionTTL),
		messaging.WithLocker(locker),
		messaging.WithAudit(sinks),
	)

	if cfg.WhatsAppEnabled {
		wc, err := whatsapp.NewClient(cfg.WhatsAppOpts...)
		if err != nil {
			return fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		svc := messaging.NewWhatsAppService(wc, cfg.WhatsAppTenantID, WhatsmeowInstanceName)
		router.Register(models.ProviderWhatsmeow, svc)
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start WhatsApp service: %w", err)
		}
		go handler.Start(ctx, svc.Inbound())
	}

	dispatcherOpts := []reminder.Option{
		reminder.WithSendDelay(cfg.SendDelay),
		reminder.WithTimeout(cfg.OutboundTimeout),
		reminder.WithLocker(locker),
	}
	if cfg.ReminderLocation != nil {
		dispatcherOpts = append(dispatcherOpts, reminder.WithLocation(cfg.ReminderLocation))
	}
	dispatcher := reminder.NewDispatcher(st, router, notifier, dispatcherOpts...)

	var schedOpts []scheduler.Option
	if cfg.ReminderLocation != nil {
		schedOpts = append(schedOpts, scheduler.WithLocation(cfg.ReminderLocation))
	}
	sched := scheduler.NewScheduler(schedOpts...)
	defer sched.Stop()
	if err := sched.AddDispatchJob(cfg.ReminderCron, dispatcher, 0); err != nil {
		return fmt.Errorf("failed to schedule reminder dispatch: %w", err)
	}

	return NewServer(st, handler, dispatcher, cfg.ServerOpts...).ListenAndServe(ctx)
}

// buildLocker returns a Redis locker when an address is configured and an
// in-process locker otherwise.
func buildLocker(ctx context.Context, cfg Config) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Info("No Redis configured, using in-process locks")
		return lock.NewLocalLocker(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("Redis locks enabled", "addr", cfg.RedisAddr)
	return lock.NewRedisLocker(rdb, ""), func() { rdb.Close() }, nil
}
