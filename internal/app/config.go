package app

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aiotts_gateway/internal/sheets"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ModeDevelopment = "development"

	BackendGoogle = "google"
	BackendMemory = "memory"
)

type Config struct {
	Port string
	// Mode "development" disables the API key check.
	Mode   string
	APIKey string

	SheetsBackend    string
	SheetSecretKey   string
	SheetsTimeout    time.Duration
	SheetsScanRows   int
	SheetsDataOffset int

	DatabaseURL    string
	DBQueryTimeout time.Duration
	DBMaxConns     int

	UpdateDir     string
	UploadDir     string
	DependencyDir string

	FlashShipDevEndpoint  string
	FlashShipProdEndpoint string

	NtfyEnabled  bool
	NtfyURL      string
	NtfyTopic    string
	NtfyPriority string

	LogFile string
}

// SheetsOptions returns the sheet layout constants from the config.
func (c Config) SheetsOptions() sheets.Options {
	return sheets.Options{
		ScanRows:      c.SheetsScanRows,
		DataRowOffset: c.SheetsDataOffset,
	}
}

// LoadConfig reads the environment. Call SetupEnvironment first so .env is applied.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:   GetEnvWithDefault("PORT", "8000"),
		Mode:   GetEnvWithDefault("MODE", "production"),
		APIKey: os.Getenv("API_KEY"),

		SheetsBackend:    strings.ToLower(GetEnvWithDefault("SHEETS_BACKEND", BackendGoogle)),
		SheetSecretKey:   os.Getenv("SHEET_SECRET_KEY"),
		SheetsTimeout:    GetEnvDuration("SHEETS_TIMEOUT", 60*time.Second),
		SheetsScanRows:   GetEnvInt("SHEETS_SCAN_ROWS", sheets.DefaultScanRows),
		SheetsDataOffset: GetEnvInt("SHEETS_DATA_ROW_OFFSET", sheets.DefaultDataRowOffset),

		DatabaseURL:    databaseURL(),
		DBQueryTimeout: GetEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		DBMaxConns:     GetEnvInt("DB_MAX_CONNS", 10),

		UpdateDir:     GetEnvWithDefault("UPDATE_DIR", filepath.Join("update", "aiotts")),
		UploadDir:     GetEnvWithDefault("UPLOAD_DIR", "uploads"),
		DependencyDir: GetEnvWithDefault("DEPENDENCY_DIR", "dependencies"),

		FlashShipDevEndpoint:  firstEnv("FLASHSHIP_DEV_ENDPOINT", "DEV_FLASHSHIP_ENDPOINT"),
		FlashShipProdEndpoint: firstEnv("FLASHSHIP_PROD_ENDPOINT", "PROD_FLASHSHIP_ENDPOINT"),

		NtfyEnabled:  GetEnvWithDefault("NTFY_ENABLED", "false") == "true",
		NtfyURL:      GetEnvWithDefault("NTFY_URL", "https://ntfy.sh"),
		NtfyTopic:    GetEnvWithDefault("NTFY_TOPIC", "aiotts-gateway"),
		NtfyPriority: GetEnvWithDefault("NTFY_PRIORITY", "high"),

		LogFile: os.Getenv("LOG_FILE"),
	}

	var errs []error
	if cfg.Mode != ModeDevelopment && cfg.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required outside development mode"))
	}
	switch cfg.SheetsBackend {
	case BackendGoogle:
		if cfg.SheetSecretKey == "" {
			errs = append(errs, errors.New("SHEET_SECRET_KEY is required for the google sheets backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SHEETS_BACKEND %q", cfg.SheetsBackend))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from DB_* parts.
// It returns "" when no database is configured.
func databaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD")),
		Host:   host + ":" + GetEnvWithDefault("DB_PORT", "5432"),
		Path:   "/" + os.Getenv("DB_NAME"),
	}
	return u.String()
}

// SetupEnvironment loads .env file and configures zerolog output and log level.
// When LOG_FILE is set, JSON logs are also written to a rotating file.
func SetupEnvironment() {
	// Load .env file if it exists
	err := godotenv.Load()

	var console io.Writer
	if os.Getenv("ENV") == "production" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		console = os.Stderr
	} else {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		file := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    GetEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: GetEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     GetEnvInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   true,
		}
		log.Logger = log.Output(zerolog.MultiLevelWriter(console, file))
	} else {
		log.Logger = log.Output(console)
	}

	zerolog.SetGlobalLevel(parseLevel(os.Getenv("LOGLEVEL"), os.Getenv("ENV") == "production"))

	// wait until now to report on the .env file so we have the chance to set up logging first
	if err == nil {
		log.Debug().Msg("Loaded environment variables from .env file.")
	} else {
		log.Debug().Msg("No .env file found or error loading .env file; proceeding with existing environment variables.")
	}
}

func parseLevel(levelStr string, production bool) zerolog.Level {
	levelStr = strings.ToLower(levelStr)
	switch levelStr {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	case "":
		if production {
			return zerolog.WarnLevel
		}
		return zerolog.InfoLevel
	default:
		log.Warn().Msgf("Unknown LOGLEVEL '%s', defaulting to info.", levelStr)
		return zerolog.InfoLevel
	}
}

// GetRequiredEnv fetches a required environment variable or exits if not set.
func GetRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatal().Msgf("%s environment variable is required", key)
	}
	return value
}

// GetEnvWithDefault fetches an environment variable with a default fallback.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Str("value", v).Msg("Invalid integer env var, using default")
			return fallback
		}
		return n
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Str("value", v).Msg("Invalid duration env var, using default")
			return fallback
		}
		return d
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
