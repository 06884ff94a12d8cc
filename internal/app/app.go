// Package app wires configuration into the long-lived components shared by
// the command line tools.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/ai"
	"github.com/seanblong/solutionfinder/internal/analysis"
	"github.com/seanblong/solutionfinder/internal/chunk"
	"github.com/seanblong/solutionfinder/internal/config"
	"github.com/seanblong/solutionfinder/internal/index"
	"github.com/seanblong/solutionfinder/internal/indexer"
	"github.com/seanblong/solutionfinder/internal/loader"
	"github.com/seanblong/solutionfinder/internal/search"
	"github.com/seanblong/solutionfinder/internal/store"
)

// SetupLogging points the global zerolog logger at stderr with the given level.
func SetupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	return nil
}

// App holds one instance of every component, built once at startup.
type App struct {
	Config  config.Specification
	Client  ai.Client
	Store   *store.Store
	Indexer *indexer.Indexer
	Loader  *loader.Loader
	Search  *search.Service
}

// New builds the provider client, storage, indexer, loader and search service.
func New(ctx context.Context, cfg config.Specification) (*App, error) {
	client, err := ai.NewClient(ctx, cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("create AI client: %w", err)
	}
	return NewWithClient(cfg, client)
}

// NewWithClient is New with a caller-supplied provider client.
func NewWithClient(cfg config.Specification, client ai.Client) (*App, error) {
	sp, err := chunk.New(chunk.WithSize(cfg.ChunkSize), chunk.WithOverlap(cfg.ChunkOverlap))
	if err != nil {
		return nil, err
	}

	st := store.New(cfg.IndexDir)
	ix := indexer.New(st, client, sp)

	var queries ai.Embedder = client
	if cfg.QueryCacheSize > 0 {
		queries = ai.NewCachedEmbedder(client, cfg.QueryCacheSize)
	}

	log.Info().
		Str("provider", cfg.Provider).
		Str("embed_model", client.Model()).
		Int("embedding_dim", client.Dim()).
		Str("index_dir", cfg.IndexDir).
		Msg("AI client initialized")

	return &App{
		Config:  cfg,
		Client:  client,
		Store:   st,
		Indexer: ix,
		Loader:  loader.New(st, ix),
		Search:  search.NewService(queries),
	}, nil
}

// Index resolves the configured documents and returns their ready index.
func (a *App) Index(ctx context.Context) (*index.VectorIndex, []string, error) {
	paths, err := a.Config.SourcePaths()
	if err != nil {
		return nil, nil, err
	}
	ix, err := a.Loader.Get(ctx, paths)
	if err != nil {
		return nil, paths, err
	}
	return ix, paths, nil
}

// Analysis returns an analysis service retrieving from ix.
func (a *App) Analysis(ix *index.VectorIndex) *analysis.Service {
	return analysis.NewService(a.Client, a.Search.Over(ix), a.Config.TopK)
}
