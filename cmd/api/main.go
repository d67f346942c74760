package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-tavern/callhub/internal/config"
	"github.com/zhouzirui/z-tavern/callhub/internal/handler"
	"github.com/zhouzirui/z-tavern/callhub/internal/handler/call"
	"github.com/zhouzirui/z-tavern/callhub/internal/model/character"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/ai"
	callservice "github.com/zhouzirui/z-tavern/callhub/internal/service/call"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dispatch"
)

type serveOptions struct {
	envFile    string
	addr       string
	characters string
	logLevel   string
}

func main() {
	root := &cobra.Command{
		Use:           "callhub",
		Short:         "Character chat and voice call server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func newServeCommand() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.StringVar(&opts.addr, "addr", "", "listen address, overrides PORT")
	flags.StringVar(&opts.characters, "characters", "", "YAML character catalogue, overrides CHARACTERS_FILE")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	return cmd
}

func serve(ctx context.Context, opts serveOptions) error {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.characters != "" {
		cfg.CharactersFile = opts.characters
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	setupLogging(cfg.Log)

	characters, err := loadCharacters(cfg.CharactersFile)
	if err != nil {
		return err
	}
	store := character.NewMemoryStore(characters)
	sessions := chat.NewService(store)

	var backend ai.Backend
	modelName := ""
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Warn().Err(err).Str("component", "main").Msg("AI service unavailable, continuing without generation")
		} else {
			backend = aiSvc
			modelName = aiSvc.ModelName()
			log.Info().Str("component", "main").Str("model", modelName).Msg("AI service initialized")
		}
	} else {
		log.Warn().Str("component", "main").Msg("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	dlg := dialogue.NewService(sessions, store, backend, dialogue.Config{
		ContextLimit:     cfg.Chat.ContextLimit,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	})
	hub := dispatch.NewHub(dispatch.Config{
		SendBuffer:   cfg.Call.SendBuffer,
		WriteTimeout: cfg.Call.WriteTimeout,
		PingInterval: cfg.Call.PingInterval,
	})
	calls := callservice.NewService(hub, dlg, callservice.Config{
		GenerationTimeout:    cfg.Call.GenerationTimeout,
		FirstFragmentTimeout: cfg.Call.FirstFragmentTimeout,
	})

	router := handler.NewRouter(handler.Deps{
		Characters:     store,
		Sessions:       sessions,
		Dialogue:       dlg,
		Calls:          calls,
		Hub:            hub,
		Model:          modelName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebSocket:      call.Config{ReadTimeout: cfg.Call.ReadTimeout},
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("component", "main").Str("addr", server.Addr).Int("characters", len(characters)).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Str("component", "main").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := calls.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		hub.Close()
		return errors.Join(errs...)
	})

	return eg.Wait()
}

func loadCharacters(path string) ([]character.Character, error) {
	if path == "" {
		return character.Seed(), nil
	}
	items, err := character.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	log.Info().Str("component", "main").Str("file", path).Int("count", len(items)).Msg("character catalogue loaded")
	return items, nil
}

func setupLogging(cfg config.LogConfig) {
	zerolog.SetGlobalLevel(parseZerologLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
}

// parseZerologLevel converts a string level into zerolog.Level with a safe default
func parseZerologLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
