package indexer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/ai"
	"github.com/seanblong/solutionfinder/internal/chunk"
	"github.com/seanblong/solutionfinder/internal/document"
	"github.com/seanblong/solutionfinder/internal/index"
	"github.com/seanblong/solutionfinder/internal/store"
	"github.com/seanblong/solutionfinder/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of chunks sent per EmbedBatch call.
const DefaultBatchSize = 64

// Indexer builds a vector index from a set of source documents and persists it.
type Indexer struct {
	Store     store.IndexStore
	Embedder  ai.Embedder
	Splitter  *chunk.Splitter
	Reader    document.Reader
	Extractor document.Extractor
	BatchSize int
	Workers   int
}

// New creates a new Indexer instance reading from the local filesystem.
func New(s store.IndexStore, e ai.Embedder, sp *chunk.Splitter) *Indexer {
	return NewWithDependencies(s, e, sp, document.OSReader{}, document.NewTextExtractor())
}

// NewWithDependencies creates a new Indexer instance with custom dependencies for testing
func NewWithDependencies(s store.IndexStore, e ai.Embedder, sp *chunk.Splitter, r document.Reader, x document.Extractor) *Indexer {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8 // Cap at 8 to avoid overwhelming the AI API
	}
	return &Indexer{
		Store:     s,
		Embedder:  e,
		Splitter:  sp,
		Reader:    r,
		Extractor: x,
		BatchSize: DefaultBatchSize,
		Workers:   workers,
	}
}

// source is one document read at build time.
type source struct {
	path string
	raw  []byte
}

// Build reads every path, chunks and embeds the text, and persists the index
// together with the manifest of the bytes it read. On any failure nothing is
// persisted and the previous index, if any, is left in place.
func (ix *Indexer) Build(ctx context.Context, paths []string) (*index.VectorIndex, error) {
	start := time.Now()
	paths = document.Normalize(paths)

	sources := make([]source, 0, len(paths))
	manifest := make(document.Manifest, len(paths))
	for _, p := range paths {
		b, err := document.Read(ix.Reader, p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source{path: p, raw: b})
		manifest[p] = document.Checksum(b)
	}

	var chunks []models.Chunk
	for _, src := range sources {
		text, err := ix.Extractor.Extract(ctx, src.path, src.raw)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", src.path, err)
		}
		pieces := ix.Splitter.Split(text)
		for i, p := range pieces {
			chunks = append(chunks, models.Chunk{Source: src.path, Ordinal: i, Content: p})
		}
		log.Debug().Str("path", src.path).Int("chunks", len(pieces)).Msg("document chunked")
	}

	vectors, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]index.Entry, len(chunks))
	for i := range chunks {
		entries[i] = index.Entry{Chunk: chunks[i], Vector: vectors[i]}
	}
	vi, err := index.New(ix.Embedder.Model(), ix.Embedder.Dim(), entries)
	if err != nil {
		return nil, &index.EmbeddingProviderError{Err: err}
	}

	if err := ix.Store.Save(ctx, vi, manifest); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	log.Info().
		Int("documents", len(sources)).
		Int("chunks", vi.Len()).
		Str("model", vi.Model()).
		Dur("took", time.Since(start)).
		Msg("index built")
	return vi, nil
}

// embedAll embeds chunks in batches, at most Workers batches in flight, and
// returns vectors in chunk order.
func (ix *Indexer) embedAll(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	if len(chunks) == 0 {
		return out, nil
	}
	size := ix.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	g, gctx := errgroup.WithContext(ctx)
	if ix.Workers > 0 {
		g.SetLimit(ix.Workers)
	}
	for lo := 0; lo < len(chunks); lo += size {
		hi := min(lo+size, len(chunks))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := lo; i < hi; i++ {
				texts[i-lo] = chunks[i].Content
			}
			vecs, err := ix.Embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return &index.EmbeddingProviderError{Err: err}
			}
			if len(vecs) != len(texts) {
				return &index.EmbeddingProviderError{
					Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs)),
				}
			}
			copy(out[lo:hi], vecs)
			log.Debug().Int("from", lo).Int("to", hi).Msg("batch embedded")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("embedding failed, build aborted")
		return nil, err
	}
	return out, nil
}

// Model names the embedding model new indexes are built with.
func (ix *Indexer) Model() string { return ix.Embedder.Model() }
