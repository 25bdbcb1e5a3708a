package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/HealthPipe/internal/api"
	"github.com/BTreeMap/HealthPipe/internal/genai"
	"github.com/BTreeMap/HealthPipe/internal/store"
	"github.com/BTreeMap/HealthPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/HealthPipe/internal/util"
	"github.com/BTreeMap/HealthPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for HealthPipe state data
	DefaultStateDir = "/var/lib/healthpipe"
	// DefaultWhatsAppDBFileName is the whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAppDBFileName is the application database filename
	DefaultAppDBFileName = "healthpipe.db"
)

func main() {
	// .env must be loaded before the logger reads HEALTHPIPE_DEBUG.
	envErr := godotenv.Load()
	initializeLogger(util.ParseBoolEnv("HEALTHPIPE_DEBUG", false))
	if envErr != nil {
		slog.Debug("failed to load .env file", "error", envErr)
	}

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	loc, err := loadLocation(*flags.timezone)
	if err != nil {
		slog.Error("Invalid time zone", "error", err, "timezone", *flags.timezone)
		os.Exit(1)
	}
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping HealthPipe with configured modules", "provider", *flags.provider, "timezone", loc.String())
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "app_dsn_set", *flags.appDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(
		buildWhatsAppOptions(flags),
		buildTwilioOptions(flags),
		buildStoreOptions(flags),
		buildGenAIOptions(flags),
		buildAPIOptions(flags, loc),
	); err != nil {
		slog.Error("HealthPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("HealthPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	OpenAIKey        string
	OpenAIModel      string
	APIAddr          string
	Provider         string
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	TwilioWebhookURL string
	Timezone         string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	whatsappDSN   *string
	appDSN        *string
	openaiKey     *string
	openaiModel   *string
	apiAddr       *string
	provider      *string
	twilioSID     *string
	twilioToken   *string
	twilioFrom    *string
	twilioWebhook *string
	timezone      *string
}

// initializeLogger sets up the default structured logger on stdout.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// loadEnvironmentConfig reads configuration from environment variables and fills defaults.
func loadEnvironmentConfig() Config {
	config := Config{
		StateDir:         os.Getenv("HEALTHPIPE_STATE_DIR"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: util.FirstEnv("DATABASE_DSN", "DATABASE_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		APIAddr:          os.Getenv("API_ADDR"),
		Provider:         os.Getenv("MESSAGING_PROVIDER"),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		Timezone:         os.Getenv("HEALTHPIPE_TIMEZONE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = defaultAppDSN(config.StateDir)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}
	if config.Provider == "" {
		config.Provider = api.ProviderWhatsApp
	}

	slog.Debug("environment variables loaded",
		"HEALTHPIPE_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_PROVIDER", config.Provider,
		"HEALTHPIPE_TIMEZONE", config.Timezone)
	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

func defaultAppDSN(stateDir string) string {
	return filepath.Join(stateDir, DefaultAppDBFileName)
}

// parseCommandLineFlags parses args with environment values as defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:      fs.String("qr-output", "", "path to write login QR code"),
		numeric:       fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:      fs.String("state-dir", config.StateDir, "state directory for HealthPipe data (overrides $HEALTHPIPE_STATE_DIR)"),
		whatsappDSN:   fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow database DSN (overrides $WHATSAPP_DB_DSN)"),
		appDSN:        fs.String("db-dsn", config.ApplicationDBDSN, "application database DSN (overrides $DATABASE_DSN or $DATABASE_URL)"),
		openaiKey:     fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   fs.String("openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)"),
		apiAddr:       fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		provider:      fs.String("provider", config.Provider, "messaging provider: whatsapp or twilio (overrides $MESSAGING_PROVIDER)"),
		twilioSID:     fs.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:   fs.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:    fs.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		twilioWebhook: fs.String("twilio-webhook-url", config.TwilioWebhookURL, "public webhook URL; enables signature checks (overrides $TWILIO_WEBHOOK_URL)"),
		timezone:      fs.String("timezone", config.Timezone, "IANA time zone for reminders (overrides $HEALTHPIPE_TIMEZONE)"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Database paths derived from the state directory follow a -state-dir override.
	if *flags.stateDir != config.StateDir {
		if *flags.appDSN == defaultAppDSN(config.StateDir) {
			*flags.appDSN = defaultAppDSN(*flags.stateDir)
		}
		if *flags.whatsappDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.whatsappDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated database paths based on state directory", "state_dir", *flags.stateDir)
	}
	return flags, nil
}

// loadLocation resolves an IANA zone name; empty means the host's local zone.
func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// ensureDirectoriesExist creates the state directory used by the lock and SQLite files.
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return fmt.Errorf("create state directory %s: %w", *flags.stateDir, err)
	}
	if store.DetectDSNType(*flags.appDSN) == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(*flags.appDSN), 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	if util.ParseBoolEnv("HEALTHPIPE_DEBUG", false) {
		waOpts = append(waOpts, whatsapp.WithLogLevel("DEBUG"))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var twOpts []twiliowhatsapp.Option
	if *flags.twilioSID != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithFromWhats(*flags.twilioFrom))
	}
	return twOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if *flags.appDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(*flags.appDSN) == "postgres" {
		return []store.Option{store.WithPostgresDSN(*flags.appDSN)}
	}
	return []store.Option{store.WithSQLiteDSN(*flags.appDSN)}
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, loc *time.Location) []api.Option {
	apiOpts := []api.Option{
		api.WithProvider(*flags.provider),
		api.WithStateDir(*flags.stateDir),
		api.WithLocation(loc),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.twilioWebhook != "" && *flags.twilioToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioWebhookValidation(*flags.twilioToken, *flags.twilioWebhook))
	}
	return apiOpts
}
