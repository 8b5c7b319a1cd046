package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/m1k1o/go-mediaserver/internal/metrics"
	"github.com/m1k1o/go-mediaserver/internal/server"
	"github.com/m1k1o/go-mediaserver/modules"
	"github.com/m1k1o/go-mediaserver/modules/hlsstream"
	"github.com/m1k1o/go-mediaserver/modules/media"
	"github.com/m1k1o/go-mediaserver/modules/player"
	"github.com/m1k1o/go-mediaserver/pkg/catalog"
	hlsStreamPkg "github.com/m1k1o/go-mediaserver/pkg/hlsstream"
	"github.com/m1k1o/go-mediaserver/pkg/probe"
)

// initial scan must not hold the server back forever
const scanTimeout = 5 * time.Minute

func NewCommand(version string) *Main {
	return &Main{
		Version:      version,
		Config:       &Config{},
		ServerConfig: &server.Config{},
	}
}

type Main struct {
	Version      string
	Config       *Config
	ServerConfig *server.Config

	logger    zerolog.Logger
	metrics   *metrics.Metrics
	server    *server.ServerManagerCtx
	media     *media.ModuleCtx
	hlsStream *hlsstream.ModuleCtx
	player    *player.ModuleCtx
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) start() {
	config := main.Config

	if main.ServerConfig.Metrics {
		main.metrics = metrics.New()
	}

	main.server = server.New(main.ServerConfig, main.metrics)

	prober := probe.NewCache(probe.Config{
		FFprobeBinary: config.FFprobeBinary,
		CacheDir:      config.ProbeCacheDir,
	})

	main.media = media.New(&media.Config{
		Config: catalog.Config{
			MediaDir: config.MediaDir,
			Workers:  config.ScanWorkers,
		},
		Version: main.Version,
	}, prober)

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	count, err := main.media.Scan(ctx)
	cancel()
	if err != nil {
		main.logger.Warn().Err(err).Str("media-dir", config.MediaDir).Msg("initial media scan failed")
	} else {
		main.logger.Info().Int("count", count).Str("media-dir", config.MediaDir).Msg("media catalog loaded")
	}

	main.hlsStream = hlsstream.New(&hlsstream.Config{
		Config: hlsStreamPkg.Config{
			BaseDir: config.OutputDir,
			Stream: hlsStreamPkg.StreamConfig{
				SegmentDuration: config.HLS.SegmentDuration,
				MaxSegments:     config.HLS.MaxSegments,
				VideoBitrate:    config.HLS.VideoBitrate,
				AudioBitrate:    config.HLS.AudioBitrate,
				Resolution:      config.HLS.Resolution,
				VideoCodec:      config.HLS.VideoCodec,
				AudioCodec:      config.HLS.AudioCodec,
				Preset:          config.HLS.Preset,
				Retention:       hlsStreamPkg.Retention(config.HLS.Retention),
				FFmpegBinary:    config.FFmpegBinary,
				ReadyTimeout:    config.HLS.ReadyTimeout,
				StopTimeout:     config.HLS.StopTimeout,
			},
			IdleTimeout: config.HLS.IdleTimeout,
		},
		CreateRateLimit: config.HLS.CreateRateLimit,
	}, main.media.Catalog(), main.metrics)

	main.player = player.New(&player.Config{
		HlsJsURL: config.HlsJsURL,
	})

	for _, module := range []modules.Module{
		main.media,
		main.hlsStream,
		main.player,
	} {
		main.server.Mount(module.Mount)
	}

	main.server.WithMetrics(func() {
		main.metrics.SetActiveStreams(main.hlsStream.ActiveStreams())
		main.metrics.SetMediaFiles(main.media.MediaFiles())
	})

	// catch-all, must be last
	main.server.WithStatic()

	main.server.Start()
	main.logger.Info().Str("output-dir", config.OutputDir).Msg("serving hls streams")
}

func (main *Main) shutdown() {
	var g errgroup.Group

	g.Go(func() error {
		return main.server.Shutdown()
	})

	g.Go(func() error {
		main.hlsStream.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		main.logger.Err(err).Msg("shutdown with an error")
	} else {
		main.logger.Info().Msg("http manager and streams shutdown")
	}
}

// ConfigReload rescans the media directory, stream settings apply on restart.
func (main *Main) ConfigReload() {
	if main.media == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()

		count, err := main.media.Scan(ctx)
		if err != nil {
			main.logger.Warn().Err(err).Msg("media rescan after config reload failed")
			return
		}
		main.logger.Info().Int("count", count).Msg("media catalog reloaded")
	}()
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	main.start()
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.shutdown()
	main.logger.Info().Msg("shutdown complete")
}
