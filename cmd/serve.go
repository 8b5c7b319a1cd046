package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-mediaserver/internal/serve"
)

func init() {
	service := serve.NewCommand(rootCmd.Version)

	command := &cobra.Command{
		Use:   "serve",
		Short: "serve media server",
		Long:  `serve media library and on-demand hls streams`,
		Run:   service.Run,
	}

	configs := []Config{
		service.ServerConfig,
		service.Config,
	}

	cobra.OnInitialize(func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		service.Preflight()
	})

	onConfigLoad = append(onConfigLoad, service.ConfigReload)

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
