package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/analysis"
	"github.com/seanblong/solutionfinder/internal/app"
	"github.com/seanblong/solutionfinder/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("solutionfinder-analyze", pflag.ExitOnError)

	var req analysis.Request
	def := analysis.DefaultValueRequest()
	fs.StringVar(&req.Description, "description", "", "Process description")
	fs.StringVar(&req.Applications, "applications", "", "Applications already in use")
	fs.StringVar(&req.TimeRequired, "time-required", def.TimeRequired,
		"Time per run, one of: "+strings.Join(analysis.TimeRequiredChoices, " | "))
	fs.StringVar(&req.Frequency, "frequency", def.Frequency,
		"How often the process runs, one of: "+strings.Join(analysis.FrequencyChoices, " | "))
	fs.StringVar(&req.Stakeholder, "stakeholder", def.Stakeholder,
		"Who benefits, one of: "+strings.Join(analysis.StakeholderChoices, " | "))

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
	ix, _, err := a.Index(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("index unavailable")
	}

	report, err := a.Analysis(ix).Analyze(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("analysis failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("failed to encode report")
	}
}
