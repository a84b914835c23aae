package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/playperu/promptparty/internal/config"
	"github.com/playperu/promptparty/internal/database"
	"github.com/playperu/promptparty/internal/eventlog"
	"github.com/playperu/promptparty/internal/game"
	"github.com/playperu/promptparty/internal/handler/health"
	"github.com/playperu/promptparty/internal/imagegen"
	"github.com/playperu/promptparty/internal/imagejob"
	"github.com/playperu/promptparty/internal/migrations"
	"github.com/playperu/promptparty/internal/server"
	"github.com/playperu/promptparty/internal/store"
)

const imageDrainTimeout = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "promptparty",
		Short:         "Real-time party game: players answer a prompt, answers become pictures.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(newConnectionsCmd(), newTailCmd())
	return cmd
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)
	st := store.New(db)

	checks := map[string]health.Checker{"sqlite": health.CheckerFunc(db.PingContext)}

	// --- Event log (+ optional Redis mirror) ---
	var logOpts []eventlog.Option
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("mirroring event log to redis", "channel", cfg.RedisChannel)
		logOpts = append(logOpts, eventlog.WithSink("redis", eventlog.NewRedisMirror(rdb, cfg.RedisChannel)))
		checks["redis"] = health.CheckerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	audit := eventlog.New(st, logger.With("component", "eventlog"), logOpts...)
	defer audit.Close()

	live, err := game.LoadSettings(ctx, st, cfg.DefaultTournament)
	if err != nil {
		return err
	}
	logger.Info("settings loaded", "tournament", live.TournamentName, "model", live.ModelName)

	// --- Images ---
	gen, defaultModel, err := imagegen.New(imagegen.Options{
		Provider:           cfg.ImageProvider,
		ReplicateToken:     cfg.ReplicateToken,
		ReplicateModel:     cfg.ReplicateModel,
		ReplicateBaseURL:   cfg.ReplicateBaseURL,
		StableDiffusionURL: cfg.StableDiffusionURL,
	}, logger.With("component", "imagegen"))
	if err != nil {
		return fmt.Errorf("configuring image provider: %w", err)
	}
	if err := os.MkdirAll(cfg.PicturesDir, 0o755); err != nil {
		return fmt.Errorf("creating pictures dir: %w", err)
	}
	pictures := afero.NewBasePathFs(afero.NewOsFs(), cfg.PicturesDir)

	images := imagejob.New(imagejob.Config{
		Generator:    asGenerator(gen),
		Store:        st,
		Recorder:     audit,
		Pictures:     pictures,
		DefaultModel: defaultModel,
		Logger:       logger.With("component", "imagejob"),
	})

	// --- Game loop ---
	hub := game.NewHub(game.Deps{
		Store:    st,
		Images:   images,
		Recorder: audit,
		Logger:   logger.With("component", "hub"),
		Live:     live,
	})
	images.SetNotifier(hub)

	// --- HTTP Server ---
	deps := server.Deps{
		Store:     st,
		Hub:       hub,
		Recorder:  audit,
		Checks:    checks,
		Pictures:  pictures,
		PublicURL: cfg.PublicURL,
		WSRate:    rate.Limit(cfg.WSMessagesPerSecond),
		WSBurst:   cfg.WSMessageBurst,
	}
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		deps.Static = afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.StaticDir))
	} else {
		logger.Warn("static dir not found, front-end disabled", "dir", cfg.StaticDir)
	}
	srv := server.New(cfg.HTTPAddr, logger, deps)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	err = g.Wait()
	drainImages(images, logger)
	return err
}

// asGenerator keeps a disabled provider a nil interface.
func asGenerator(g imagegen.Generator) imagejob.Generator {
	if g == nil {
		return nil
	}
	return g
}

func drainImages(d *imagejob.Dispatcher, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(imageDrainTimeout):
		logger.Warn("image jobs still running at shutdown")
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
