package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/app"
	"github.com/seanblong/solutionfinder/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("solutionfinder-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	if err := app.SetupLogging(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}

	ix, paths, err := a.Index(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("index unavailable")
	}

	outcome := "reused"
	if a.Loader.Rebuilt(paths) {
		outcome = "rebuilt"
	}
	log.Info().
		Str("outcome", outcome).
		Int("documents", len(paths)).
		Int("chunks", ix.Len()).
		Str("model", ix.Model()).
		Str("dir", a.Store.Dir()).
		Msg("index ready")
}
