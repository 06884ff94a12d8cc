package main

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/app"
	"github.com/seanblong/solutionfinder/internal/config"
	"github.com/seanblong/solutionfinder/pkg/models"
	"github.com/spf13/pflag"
)

type Simple struct {
	Source  string  `json:"source"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

func output(res []models.SearchResult) (out []Simple) {
	out = make([]Simple, 0, len(res))
	for _, r := range res {
		score := r.Score
		if math.IsNaN(score) || math.IsInf(score, 0) {
			score = 0
		}
		out = append(out, Simple{
			Source:  r.Chunk.Source,
			Ordinal: r.Chunk.Ordinal,
			Score:   score,
			Preview: r.Chunk.Content,
		})
	}
	return out
}

func main() {
	fs := pflag.NewFlagSet("solutionfinder-search", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	if err := app.SetupLogging(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	q := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if q == "" {
		fs.Usage()
		log.Fatal().Msg("usage: solutionfinder-search [flags] <query>")
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

	res, err := a.Search.Query(ctx, ix, q, cfg.TopK)
	if err != nil {
		log.Fatal().Err(err).Str("query", q).Msg("search failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output(res)); err != nil {
		log.Fatal().Err(err).Msg("failed to encode results")
	}
}
