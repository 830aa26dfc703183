package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/b-open-io/gamedata/client"
	"github.com/b-open-io/gamedata/config"
	"github.com/b-open-io/gamedata/internal/utils"
	"github.com/b-open-io/gamedata/mirror"
	"github.com/b-open-io/gamedata/pubsub"
	"github.com/b-open-io/gamedata/routes"
)

var (
	envFile string
	port    int
)

func init() {
	flag.StringVar(&envFile, "env", ".env", "Environment file to load")
	flag.IntVar(&port, "p", 0, "Port to listen on (overrides PORT)")
	flag.Parse()
}

func main() {
	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if port != 0 {
		cfg.Port = port
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Shutting down with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	cl, stream, err := config.CreateClient(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer cl.Close()
	defer stream.Close()
	client.SetDefault(cl)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := cl.Subscribe(gctx, cfg.Models...); err != nil {
			return fmt.Errorf("initial subscription: %w", err)
		}
		return nil
	})

	if cfg.MirrorURL != "" {
		sink, err := mirror.CreateSink(ctx, cfg.MirrorURL)
		if err != nil {
			return fmt.Errorf("failed to open mirror: %w", err)
		}
		defer sink.Close()
		slog.Info("Mirroring tokens", "url", utils.SanitizeConnectionString(cfg.MirrorURL))
		m := mirror.New(cl.Tokens(), sink, slog.Default())
		g.Go(func() error {
			if err := m.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	changes, err := config.CreateChangeStream(cfg)
	if err != nil {
		return err
	}
	defer changes.Close()
	slog.Info("Publishing token changes", "url", utils.SanitizeConnectionString(cfg.ChangesURL), "topic", cfg.ChangesTopic)

	sseManager := pubsub.NewSSEManager(gctx, changes)
	defer sseManager.Stop()
	stopChanges := routes.PublishTokenChanges(gctx, cl.Tokens(), changes, cfg.ChangesTopic)
	defer stopChanges()

	app := fiber.New(fiber.Config{
		AppName:               "gamedata",
		DisableStartupMessage: true,
	})
	api := app.Group("/api/v1")
	routes.RegisterRoutes(api, &routes.RoutesConfig{Client: cl})
	routes.RegisterSSERoutes(api, &routes.SSERoutesConfig{
		SSEManager:   sseManager,
		DefaultTopic: cfg.ChangesTopic,
		Context:      gctx,
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slog.Info("Listening", "addr", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Stopping HTTP server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
