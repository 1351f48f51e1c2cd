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

	"github.com/joho/godotenv"

	"github.com/redmadres/danabot/internal/api"
	"github.com/redmadres/danabot/internal/bot"
	"github.com/redmadres/danabot/internal/dispatch"
	"github.com/redmadres/danabot/internal/escalation"
	"github.com/redmadres/danabot/internal/lockfile"
	"github.com/redmadres/danabot/internal/messaging"
	"github.com/redmadres/danabot/internal/models"
	"github.com/redmadres/danabot/internal/roles"
	"github.com/redmadres/danabot/internal/store"
	"github.com/redmadres/danabot/internal/telegram"
	"github.com/redmadres/danabot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for danabot state data
	DefaultStateDir = "/var/lib/danabot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "danabot.db"
	// DefaultSendRate is the default outbound Telegram rate in messages per second
	DefaultSendRate = 25.0
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	// Load environment configuration before the logger so LOG_LEVEL from .env applies
	envLoaded := loadDotEnv()
	initializeLogger(os.Getenv("LOG_LEVEL"))
	slog.Debug("dotenv", "loaded", envLoaded)

	config := loadEnvironmentConfig()

	config, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(config.DatabaseDSN); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := acquireStateLock(config.DatabaseDSN)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release state directory lock", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping danabot with configured modules")
	if err := run(ctx, config); err != nil {
		slog.Error("danabot failed to run", "error", err)
		exitCode = 1
	} else {
		slog.Info("danabot exited successfully")
	}
}

// Config holds the process configuration gathered from the environment and flags.
type Config struct {
	BotToken            string
	TelegramServerURL   string
	WebhookSecret       string
	WebhookPath         string
	APIAddr             string
	StateDir            string
	DatabaseDSN         string
	AdminIDs            []int64
	ProfessionalGroupID int64
	RoutesFile          string
	SendRate            float64
	EscalationEnabled   bool
	EscalationPhones    []string
}

func loadDotEnv() bool {
	return godotenv.Load() == nil
}

// initializeLogger installs a text handler on stdout at the given level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// parseLogLevel maps LOG_LEVEL to a slog level, defaulting to debug.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// loadEnvironmentConfig reads configuration from environment variables.
func loadEnvironmentConfig() Config {
	config := Config{
		BotToken:            os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramServerURL:   os.Getenv("TELEGRAM_SERVER_URL"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		WebhookPath:         os.Getenv("WEBHOOK_PATH"),
		APIAddr:             os.Getenv("API_ADDR"),
		StateDir:            os.Getenv("DANABOT_STATE_DIR"),
		DatabaseDSN:         os.Getenv("DATABASE_URL"),
		AdminIDs:            util.ParseInt64ListEnv("ADMIN_CHAT_IDS"),
		ProfessionalGroupID: util.ParseInt64Env("PROFESSIONAL_GROUP_ID", 0),
		RoutesFile:          os.Getenv("ROUTES_FILE"),
		SendRate:            util.ParseFloatEnv("TELEGRAM_SEND_RATE", DefaultSendRate),
		EscalationEnabled:   util.ParseBoolEnv("ESCALATION_ENABLED", true),
		EscalationPhones:    util.ParseListEnv("ESCALATION_PHONES"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No DANABOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.WebhookPath == "" {
		config.WebhookPath = api.DefaultWebhookPath
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.BotToken != "",
		"WEBHOOK_SECRET_SET", config.WebhookSecret != "",
		"API_ADDR", config.APIAddr,
		"DANABOT_STATE_DIR", config.StateDir,
		"DATABASE_TYPE", store.DetectDSNType(config.DatabaseDSN),
		"ADMIN_CHAT_IDS", len(config.AdminIDs),
		"PROFESSIONAL_GROUP_ID", config.ProfessionalGroupID,
		"ROUTES_FILE", config.RoutesFile,
		"TELEGRAM_SEND_RATE", config.SendRate,
		"ESCALATION_ENABLED", config.EscalationEnabled,
		"ESCALATION_PHONES", len(config.EscalationPhones))
	return config
}

// parseCommandLineFlags applies flag overrides on top of the environment config.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Config, error) {
	defaultDSN := filepath.Join(config.StateDir, DefaultDBFileName)

	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for danabot data (overrides $DANABOT_STATE_DIR)")
	fs.StringVar(&config.DatabaseDSN, "db-dsn", config.DatabaseDSN, "database DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "HTTP listen address (overrides $API_ADDR)")
	fs.StringVar(&config.WebhookPath, "webhook-path", config.WebhookPath, "webhook route (overrides $WEBHOOK_PATH)")
	fs.StringVar(&config.RoutesFile, "routes-file", config.RoutesFile, "YAML specialty routes (overrides $ROUTES_FILE)")
	fs.Int64Var(&config.ProfessionalGroupID, "professional-group", config.ProfessionalGroupID, "professional group chat id (overrides $PROFESSIONAL_GROUP_ID)")
	fs.Float64Var(&config.SendRate, "send-rate", config.SendRate, "outbound Telegram messages per second (overrides $TELEGRAM_SEND_RATE)")
	fs.BoolVar(&config.EscalationEnabled, "escalation", config.EscalationEnabled, "page on-call numbers by SMS for high urgency requests (overrides $ESCALATION_ENABLED)")

	stateDir := config.StateDir
	if err := fs.Parse(args); err != nil {
		return config, err
	}

	// Follow a moved state directory unless the DSN was set explicitly
	if config.DatabaseDSN == defaultDSN && config.StateDir != stateDir {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("Updated DSN based on state directory", "state_dir", config.StateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", config.StateDir,
		"dbDSN_set", config.DatabaseDSN != "",
		"apiAddr", config.APIAddr,
		"webhookPath", config.WebhookPath,
		"routesFile", config.RoutesFile,
		"professionalGroup", config.ProfessionalGroupID,
		"sendRate", config.SendRate,
		"escalation", config.EscalationEnabled)
	return config, nil
}

// ensureDirectoriesExist creates the parent directory of a file-based DSN.
func ensureDirectoriesExist(dsn string) error {
	if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
		return nil
	}
	dir := filepath.Dir(dsn)
	slog.Debug("Creating state directory for file-based database", "state_dir", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return nil
}

// acquireStateLock locks the directory of a SQLite database. Postgres DSNs
// get no lock.
func acquireStateLock(dsn string) (*lockfile.Lock, error) {
	if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
		return nil, nil
	}
	return lockfile.Acquire(filepath.Dir(dsn))
}

// buildRoutes loads the routes file, or sends everything to the professional
// group when none is configured.
func buildRoutes(config Config) (*dispatch.Routes, error) {
	if config.RoutesFile != "" {
		routes, err := dispatch.LoadRoutes(config.RoutesFile)
		if err != nil {
			return nil, err
		}
		slog.Debug("Routes loaded", "file", config.RoutesFile, "specialties", len(routes.Specialties), "catchAll", len(routes.CatchAll))
		return routes, nil
	}
	if config.ProfessionalGroupID == 0 {
		slog.Warn("No ROUTES_FILE or PROFESSIONAL_GROUP_ID configured, help requests will not be broadcast")
		return dispatch.CatchAllRoutes(), nil
	}
	slog.Debug("No ROUTES_FILE set, routing every specialty to the professional group", "chatID", config.ProfessionalGroupID)
	return dispatch.CatchAllRoutes(models.Destination{ChatID: config.ProfessionalGroupID}), nil
}

// buildEscalator returns the SMS escalator, or nil when escalation is off or
// Twilio is not configured.
func buildEscalator(config Config) dispatch.Escalator {
	if !config.EscalationEnabled {
		slog.Debug("Escalation disabled")
		return nil
	}
	if len(config.EscalationPhones) == 0 {
		slog.Debug("Escalation enabled but ESCALATION_PHONES is empty, skipping")
		return nil
	}
	client, err := escalation.NewClient()
	if err != nil {
		slog.Warn("Escalation disabled, Twilio client unavailable", "error", err)
		return nil
	}
	return escalation.NewNotifier(client, config.EscalationPhones)
}

// run wires every module and blocks until ctx is cancelled.
func run(ctx context.Context, config Config) error {
	st, err := store.New(config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("Failed to close store", "error", cerr)
		}
	}()

	tgOpts := []telegram.Option{telegram.WithToken(config.BotToken)}
	if config.TelegramServerURL != "" {
		tgOpts = append(tgOpts, telegram.WithServerURL(config.TelegramServerURL))
	}
	client, err := telegram.NewClient(tgOpts...)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}
	msg := messaging.NewTelegramService(client, config.SendRate)
	if err := msg.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}

	routes, err := buildRoutes(config)
	if err != nil {
		return err
	}
	wfOpts := []dispatch.Option{
		dispatch.WithRoutes(routes),
		dispatch.WithProfessionalGroup(config.ProfessionalGroupID),
	}
	if esc := buildEscalator(config); esc != nil {
		wfOpts = append(wfOpts, dispatch.WithEscalator(esc))
	}
	workflow := dispatch.NewWorkflow(st, msg, wfOpts...)

	if len(config.AdminIDs) == 0 {
		slog.Warn("ADMIN_CHAT_IDS is empty, nobody can use the administrator menu")
	}
	registry := roles.NewRegistry(st, config.AdminIDs)
	router := bot.NewRouter(st, msg, registry, workflow, bot.WithProfessionalGroup(config.ProfessionalGroupID))

	server := api.NewServer(msg,
		api.WithAddr(config.APIAddr),
		api.WithWebhookSecret(config.WebhookSecret),
		api.WithWebhookPath(config.WebhookPath))

	slog.Debug("Final configuration", "state_dir", config.StateDir, "api_addr", config.APIAddr, "admins", len(config.AdminIDs))
	return api.Run(ctx, server, router)
}
