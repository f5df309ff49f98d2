// Command ttvlog is a Twitch chat logging bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs migrations.
//   - Joins the default channel plus every active channel from the directory and
//     logs messages, timeouts, bans and deletions into per-channel partitions.
//   - Answers admin chat commands (join, leave, ping).
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /channels and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/onnwee/ttvlog/chat"
	"github.com/onnwee/ttvlog/config"
	"github.com/onnwee/ttvlog/db"
	"github.com/onnwee/ttvlog/server"
	"github.com/onnwee/ttvlog/store"
	"github.com/onnwee/ttvlog/telemetry"
	"github.com/onnwee/ttvlog/twitchapi"
)

var version = "dev"

func main() {
	// local dev convenience only; production relies on real env
	_ = godotenv.Load()

	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("ttvlog", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err), slog.String("component", "db_migrate"))
		os.Exit(1)
	}

	tokens, err := twitchapi.NewAppTokenSource(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchBearer)
	if err != nil {
		slog.Error("twitch app token source", slog.Any("err", err))
		os.Exit(1)
	}
	burst := int(cfg.HelixRatePerSecond)
	if burst < 1 {
		burst = 1
	}
	helix := &twitchapi.HelixClient{
		ClientID:    cfg.TwitchClientID,
		TokenSource: tokens,
		HTTPClient:  &http.Client{Timeout: cfg.HelixTimeout},
		Limiter:     rate.NewLimiter(rate.Limit(cfg.HelixRatePerSecond), burst),
		Timeout:     cfg.HelixTimeout,
	}

	pg := store.New(database)
	irc := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
	bot := chat.New(chat.Options{
		Prefix:          cfg.CommandPrefix,
		MentionName:     cfg.MentionName,
		Admins:          cfg.Admins,
		IgnoredSenders:  cfg.IgnoredSenders,
		DefaultChannel:  cfg.DefaultChannel,
		ReservedChannel: cfg.ReservedChannel,
		StoreTimeout:    cfg.DBTimeout,
	}, irc, pg, pg, helix)

	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, server.NewHandlers(database, bot, pg), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("starting chat bot", slog.String("bot", cfg.TwitchBotUsername), slog.String("default_channel", cfg.DefaultChannel))
	if err := bot.Run(ctx); err != nil {
		slog.Error("chat connection closed", slog.Any("err", err), slog.String("component", "chat"))
	}
	<-ctx.Done()
	slog.Info("shutting down")
}
