package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/therascent/therascent/internal/api"
	"github.com/therascent/therascent/internal/catalog"
	"github.com/therascent/therascent/internal/dialogue"
	"github.com/therascent/therascent/internal/store"
	"github.com/therascent/therascent/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for therascent state data
	DefaultStateDir = "/var/lib/therascent"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "therascent.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cat, err := catalog.Load()
	if err != nil {
		slog.Error("Failed to load message catalog", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine := dialogue.NewEngine(cat, st, buildEngineOptions(flags)...)
	defer engine.Flush()

	server := api.NewServer(engine, st, buildAPIOptions(flags)...)
	slog.Info("Bootstrapping therascent", "addr_set", *flags.apiAddr != "", "dsn_set", *flags.dbDSN != "")
	if err := server.Run(); err != nil {
		slog.Error("therascent failed to run", "error", err)
		os.Exit(1)
	}
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	TypingDelay time.Duration
	Debug       bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	apiAddr     *string
	typingDelay *time.Duration
}

// initializeLogger sets up structured logging, at debug level when
// THERASCENT_DEBUG is set.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("THERASCENT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("THERASCENT_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		TypingDelay: util.ParseDurationEnv("TYPING_DELAY", dialogue.DefaultTypingDelay),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No THERASCENT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"THERASCENT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"TYPING_DELAY", config.TypingDelay)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for therascent data (overrides $THERASCENT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		typingDelay: flag.Duration("typing-delay", config.TypingDelay, "pacing delay before assistant messages (overrides $TYPING_DELAY)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"typingDelay", *flags.typingDelay)

	// Follow the state directory when the DSN was defaulted from it
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore selects a store backend from the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildEngineOptions constructs dialogue engine configuration options
func buildEngineOptions(flags Flags) []dialogue.Option {
	var opts []dialogue.Option
	if *flags.typingDelay != dialogue.DefaultTypingDelay {
		opts = append(opts, dialogue.WithTypingDelay(*flags.typingDelay))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	return opts
}
