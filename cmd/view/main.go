// Command view runs a headless viewer session against a relay: it
// subscribes to a channel, keeps current/reference slots, and logs every
// composited scene. Useful for watching a channel from a terminal and for
// capturing a reference (--capture-after) without a graphical embedding.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adwski/preview-relay/backoff"
	"github.com/adwski/preview-relay/config"
	"github.com/adwski/preview-relay/storage/sqlite"
	"github.com/adwski/preview-relay/viewer"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("view", pflag.ContinueOnError)

	var (
		configPath   = fs.StringP("config", "c", "", "path to yaml config file")
		url          = fs.StringP("url", "u", "", "relay websocket url")
		channelID    = fs.StringP("channel", "n", "default", "channel id to watch")
		storePath    = fs.StringP("store", "s", "", "sqlite path for reference persistence")
		captureAfter = fs.DurationP("capture-after", "t", 0, "capture a reference this long after start")
		logLevel     = fs.StringP("log-level", "l", "info", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *url != "" {
		cfg.Push.URL = *url
	}
	if *storePath != "" {
		cfg.Viewer.StorePath = *storePath
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	var store viewer.ReferenceStore
	if cfg.Viewer.StorePath != "" {
		sqliteStore, err := sqlite.Open(cfg.Viewer.StorePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open reference store")
		}
		defer func() { _ = sqliteStore.Close() }()
		store = sqliteStore
	}

	session := viewer.NewSession(viewer.Config{
		Logger:          &logger,
		ChannelID:       *channelID,
		Store:           store,
		Box:             viewer.Size{W: 1280, H: 720},
		RefreshInterval: cfg.Viewer.RefreshInterval.Std(),
		ScaleMin:        cfg.Viewer.ScaleMin,
		ScaleMax:        cfg.Viewer.ScaleMax,
		Renderer: func(scene viewer.Scene) {
			logger.Info().
				Str("mode", scene.Mode.String()).
				Str("status", scene.Status.String()).
				Int("ops", len(scene.Ops)).
				Float64("scale", scene.View.Scale).
				Msg("scene")
		},
	})
	defer session.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sub := viewer.SessionSubscriber(session, viewer.SubscriberConfig{
		Logger: &logger,
		URL:    cfg.Push.URL,
		Backoff: backoff.Policy{
			Base:        cfg.Push.Backoff.Base.Std(),
			Max:         cfg.Push.Backoff.Max.Std(),
			MaxAttempts: cfg.Push.Backoff.MaxAttempts,
		},
	})
	sub.Start(ctx)
	defer sub.Close()

	if *captureAfter > 0 {
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(*captureAfter):
				session.Dispatch(viewer.CaptureEvent{})
				logger.Info().Msg("reference captured")
			}
		}()
	}

	<-ctx.Done()
	logger.Warn().Msg("interrupted")
}
