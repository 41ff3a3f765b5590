package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/ResellerBot/internal/api"
	"github.com/BTreeMap/ResellerBot/internal/lockfile"
	"github.com/BTreeMap/ResellerBot/internal/reminder"
	"github.com/BTreeMap/ResellerBot/internal/scheduler"
	"github.com/BTreeMap/ResellerBot/internal/store"
	"github.com/BTreeMap/ResellerBot/internal/util"
	"github.com/BTreeMap/ResellerBot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ResellerBot state data
	DefaultStateDir = "/var/lib/resellerbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "resellerbot.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	loadDotEnv()
	initializeLogger(os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	runCfg, err := buildRunConfig(config, flags)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	var stateLock *lockfile.Lock
	if needsStateLock(flags) {
		stateLock, err = lockfile.Acquire(flags.stateDir)
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer stateLock.Release()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ResellerBot with configured modules")
	slog.Debug("Final configuration", "state_dir", flags.stateDir, "dsn_set", flags.dbDSN != "", "api_addr", flags.apiAddr,
		"evolution", runCfg.EvolutionURL != "", "whatsmeow", runCfg.WhatsAppEnabled, "twilio", runCfg.TwilioEnabled,
		"redis", runCfg.RedisAddr != "", "kafka", runCfg.KafkaBrokers != "", "sns", runCfg.SNSRegion != "")
	if err := api.Run(ctx, runCfg); err != nil {
		slog.Error("ResellerBot failed to run", "error", err)
		stateLock.Release()
		os.Exit(1)
	}
	slog.Info("ResellerBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir        string
	DBDSN           string
	WhatsAppDSN     string
	WhatsAppEnabled bool
	WhatsAppTenant  string
	APIAddr         string
	EvolutionURL    string
	EvolutionKey    string
	TwilioEnabled   bool
	RedisAddr       string
	RedisPassword   string
	KafkaBrokers    string
	KafkaTopic      string
	SNSRegion       string
	ReminderTZ      string
	ReminderCron    string
	SendDelay       time.Duration
	OutboundTimeout time.Duration
	SessionTTL      time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     string
	numeric      bool
	whatsapp     bool
	stateDir     string
	dbDSN        string
	apiAddr      string
	evolutionURL string
	redisAddr    string
	reminderTZ   string
	reminderCron string
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}
}

// parseLogLevel maps LOG_LEVEL to a slog level. Unknown values select debug.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// initializeLogger sets up structured logging
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables
func loadEnvironmentConfig() Config {
	config := Config{
		StateDir:        os.Getenv("RESELLERBOT_STATE_DIR"),
		DBDSN:           util.FirstEnv("RESELLERBOT_DB_DSN", "DATABASE_URL"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		WhatsAppEnabled: util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		WhatsAppTenant:  os.Getenv("WHATSAPP_TENANT_ID"),
		APIAddr:         os.Getenv("API_ADDR"),
		EvolutionURL:    os.Getenv("EVOLUTION_API_URL"),
		EvolutionKey:    os.Getenv("EVOLUTION_API_KEY"),
		TwilioEnabled:   os.Getenv("TWILIO_ACCOUNT_SID") != "" && os.Getenv("TWILIO_AUTH_TOKEN") != "" && os.Getenv("TWILIO_FROM_NUMBER") != "",
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      os.Getenv("KAFKA_AUDIT_TOPIC"),
		SNSRegion:       os.Getenv("PUSH_SNS_REGION"),
		ReminderTZ:      os.Getenv("REMINDER_TIMEZONE"),
		ReminderCron:    os.Getenv("REMINDER_CRON"),
		SendDelay:       util.ParseDurationEnv("REMINDER_SEND_DELAY", reminder.DefaultSendDelay),
		OutboundTimeout: util.ParseDurationEnv("OUTBOUND_TIMEOUT", reminder.DefaultOutboundTimeout),
		SessionTTL:      util.ParseDurationEnv("SESSION_TTL", 0),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No RESELLERBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DBDSN)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = whatsAppDSNFor(config.StateDir)
	}
	if config.ReminderTZ == "" {
		config.ReminderTZ = reminder.DefaultLocation
	}
	if config.ReminderCron == "" {
		config.ReminderCron = scheduler.DefaultDispatchExpr
	}

	slog.Debug("environment variables loaded",
		"RESELLERBOT_STATE_DIR", config.StateDir,
		"DB_DSN_SET", config.DBDSN != "",
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"API_ADDR", config.APIAddr,
		"EVOLUTION_API_URL", config.EvolutionURL,
		"TWILIO_ENABLED", config.TwilioEnabled,
		"REDIS_ADDR", config.RedisAddr,
		"KAFKA_BROKERS", config.KafkaBrokers,
		"PUSH_SNS_REGION", config.SNSRegion,
		"REMINDER_TIMEZONE", config.ReminderTZ,
		"REMINDER_CRON", config.ReminderCron,
		"SESSION_TTL", config.SessionTTL)

	return config
}

func whatsAppDSNFor(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("ResellerBot", flag.ContinueOnError)
	fs.StringVar(&flags.qrOutput, "qr-output", "", "path to write the whatsmeow login QR code")
	fs.BoolVar(&flags.numeric, "numeric-code", false, "use numeric login code instead of QR code")
	fs.BoolVar(&flags.whatsapp, "whatsapp", config.WhatsAppEnabled, "enable the embedded whatsmeow device (overrides $WHATSAPP_ENABLED)")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for ResellerBot data (overrides $RESELLERBOT_STATE_DIR)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DBDSN, "PostgreSQL DSN or SQLite path (overrides $RESELLERBOT_DB_DSN or $DATABASE_URL)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.evolutionURL, "evolution-url", config.EvolutionURL, "Evolution API base URL (overrides $EVOLUTION_API_URL)")
	fs.StringVar(&flags.redisAddr, "redis-addr", config.RedisAddr, "Redis address for locks (overrides $REDIS_ADDR)")
	fs.StringVar(&flags.reminderTZ, "reminder-tz", config.ReminderTZ, "time zone of reminder schedules (overrides $REMINDER_TIMEZONE)")
	fs.StringVar(&flags.reminderCron, "reminder-cron", config.ReminderCron, "cron expression for the reminder dispatcher (overrides $REMINDER_CRON)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	slog.Debug("flags parsed",
		"qrOutput", flags.qrOutput,
		"numeric", flags.numeric,
		"whatsapp", flags.whatsapp,
		"stateDir", flags.stateDir,
		"dbDSN_set", flags.dbDSN != "",
		"apiAddr", flags.apiAddr,
		"reminderTZ", flags.reminderTZ,
		"reminderCron", flags.reminderCron)

	// Follow a -state-dir override when the DSN is still the default SQLite path
	if flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && flags.stateDir != config.StateDir {
		flags.dbDSN = filepath.Join(flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", flags.stateDir)
	}

	return flags, nil
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(flags.dbDSN) != "sqlite3" {
		return nil
	}
	stateDir := filepath.Dir(flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// needsStateLock reports whether the state directory holds data that a second
// process must not open: a SQLite database or the whatsmeow device store.
func needsStateLock(flags Flags) bool {
	return store.DetectDSNType(flags.dbDSN) == "sqlite3" || flags.whatsapp
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(config Config, flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	dsn := config.WhatsAppDSN
	if dsn == whatsAppDSNFor(config.StateDir) && flags.stateDir != config.StateDir {
		dsn = whatsAppDSNFor(flags.stateDir)
	}
	if dsn != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(dsn))
	}
	return waOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	return apiOpts
}

// buildRunConfig assembles the module configuration handed to api.Run.
func buildRunConfig(config Config, flags Flags) (api.Config, error) {
	loc, err := time.LoadLocation(flags.reminderTZ)
	if err != nil {
		return api.Config{}, fmt.Errorf("invalid reminder time zone %q: %w", flags.reminderTZ, err)
	}
	if flags.whatsapp && config.WhatsAppTenant == "" {
		return api.Config{}, fmt.Errorf("WHATSAPP_TENANT_ID is required when the whatsmeow device is enabled")
	}
	return api.Config{
		DBDSN:            flags.dbDSN,
		EvolutionURL:     flags.evolutionURL,
		EvolutionKey:     config.EvolutionKey,
		WhatsAppEnabled:  flags.whatsapp,
		WhatsAppTenantID: config.WhatsAppTenant,
		WhatsAppOpts:     buildWhatsAppOptions(config, flags),
		TwilioEnabled:    config.TwilioEnabled,
		RedisAddr:        flags.redisAddr,
		RedisPassword:    config.RedisPassword,
		KafkaBrokers:     config.KafkaBrokers,
		KafkaTopic:       config.KafkaTopic,
		SNSRegion:        config.SNSRegion,
		ReminderLocation: loc,
		ReminderCron:     flags.reminderCron,
		SendDelay:        config.SendDelay,
		OutboundTimeout:  config.OutboundTimeout,
		SessionTTL:       config.SessionTTL,
		ServerOpts:       buildAPIOptions(flags),
	}, nil
}
