package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/talk2me-ai/talk2me/internal/api"
	"github.com/talk2me-ai/talk2me/internal/appointment"
	"github.com/talk2me-ai/talk2me/internal/flow"
	"github.com/talk2me-ai/talk2me/internal/genai"
	"github.com/talk2me-ai/talk2me/internal/session"
	"github.com/talk2me-ai/talk2me/internal/store"
	"github.com/talk2me-ai/talk2me/internal/util"
	"github.com/talk2me-ai/talk2me/internal/voice"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	generator, err := buildGenerator(flags)
	if err != nil {
		slog.Error("Failed to initialize generator", "error", err)
		os.Exit(1)
	}

	sessions := session.NewStore()
	responder := flow.NewResponder(generator, sessions, st, flow.Config{
		ShortContext:       config.ShortContext,
		LongContext:        config.LongContext,
		MinConversationLen: config.MinConversationLen,
	})
	scheduler := appointment.NewScheduler(st)

	var synth api.Synthesizer
	if *flags.ttsEnabled {
		s, err := voice.NewSynthesizer(ctx)
		if err != nil {
			slog.Error("Failed to initialize speech synthesis", "error", err)
			os.Exit(1)
		}
		defer s.Close()
		synth = s
	}

	server := api.NewServer(st, sessions, responder, scheduler, synth, api.WithAddr(*flags.apiAddr))

	slog.Info("Bootstrapping Talk2Me", "addr", *flags.apiAddr, "tts", *flags.ttsEnabled)
	if err := server.Run(ctx); err != nil {
		slog.Error("Talk2Me failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Talk2Me exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL        string
	OpenAIKey          string
	OpenAIModel        string
	APIAddr            string
	TTSEnabled         bool
	ShortContext       int
	LongContext        int
	MinConversationLen int
}

// Flags holds command line flag values
type Flags struct {
	dbDSN       *string
	openaiKey   *string
	openaiModel *string
	apiAddr     *string
	ttsEnabled  *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		APIAddr:            os.Getenv("API_ADDR"),
		TTSEnabled:         util.ParseBoolEnv("TTS_ENABLED", false),
		ShortContext:       util.ParseIntEnv("CHAT_SHORT_CONTEXT", flow.DefaultShortContext),
		LongContext:        util.ParseIntEnv("CHAT_LONG_CONTEXT", flow.DefaultLongContext),
		MinConversationLen: util.ParseIntEnv("CHAT_MIN_CONVERSATION_LEN", flow.DefaultMinConversationLen),
	}

	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"TTS_ENABLED", config.TTSEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		ttsEnabled:  flag.Bool("tts", config.TTSEnabled, "enable speech synthesis (overrides $TTS_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"tts", *flags.ttsEnabled)

	return flags
}

// buildStore selects the persistence backend from the DSN. No DSN means the
// in-memory store, which is only useful for local development.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Warn("No database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Info("Using Postgres store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	default:
		slog.Info("Using SQLite store", "path", dsn)
		return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
}

// buildGenerator constructs the OpenAI-backed text generator.
func buildGenerator(flags Flags) (*genai.Client, error) {
	opts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.openaiModel != "" {
		opts = append(opts, genai.WithModel(*flags.openaiModel))
	}
	return genai.NewClient(opts...)
}
