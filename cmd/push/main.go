// Command push sends pre-encoded image files to a relay channel. It is the
// producer-side counterpart of the viewer: useful for demos and for testing
// a running relay without the real producing process.
package main

import (
	"context"
	"os"
	"time"

	"github.com/adwski/preview-relay/backoff"
	"github.com/adwski/preview-relay/config"
	"github.com/adwski/preview-relay/model"
	"github.com/adwski/preview-relay/pushclient"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const connectTimeout = 40 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("push", pflag.ContinueOnError)

	var (
		configPath = fs.StringP("config", "c", "", "path to yaml config file")
		url        = fs.StringP("url", "u", "", "relay websocket url")
		channelID  = fs.StringP("channel", "n", "default", "channel id")
		logLevel   = fs.StringP("log-level", "l", "info", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}
	files := fs.Args()
	if len(files) == 0 {
		logger.Fatal().Msg("no image files given")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *url != "" {
		cfg.Push.URL = *url
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{})
	manager := pushclient.NewManager(&logger)
	client := manager.Acquire(ctx, pushclient.Config{
		Logger:    &logger,
		URL:       cfg.Push.URL,
		QueueSize: cfg.Push.QueueSize,
		Backoff: backoff.Policy{
			Base:        cfg.Push.Backoff.Base.Std(),
			Max:         cfg.Push.Backoff.Max.Std(),
			MaxAttempts: cfg.Push.Backoff.MaxAttempts,
		},
		OnStatus: func(s model.Status) {
			if s == model.StatusConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
	})
	defer manager.Close()

	select {
	case <-connected:
	case <-time.After(connectTimeout):
		logger.Fatal().Msg("could not connect to relay")
	}

	for _, path := range files {
		payload, err := os.ReadFile(path)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("failed to read image")
			continue
		}
		client.Enqueue(model.NewFrameMessage(*channelID, payload))
		logger.Info().Str("file", path).Str("channel", *channelID).Msg("frame enqueued")
	}
	// Close flushes frames still queued on a live connection.
}
