package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/ai"
	"github.com/seanblong/solutionfinder/internal/index"
	"github.com/seanblong/solutionfinder/pkg/models"
)

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, q string, k int) ([]models.SearchResult, error)
}

type Service struct {
	Embedder ai.Embedder
}

// NewService creates a new search service that embeds queries with e.
func NewService(e ai.Embedder) *Service {
	return &Service{Embedder: e}
}

// Query embeds q and returns the min(k, ix.Len()) most similar chunks of ix,
// best first. It fails with index.ErrEmptyIndex before calling the provider
// when ix holds no chunks.
func (s *Service) Query(ctx context.Context, ix *index.VectorIndex, q string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if ix == nil || ix.Len() == 0 {
		return nil, index.ErrEmptyIndex
	}
	q = strings.TrimSpace(q)

	vec, err := s.Embedder.Embed(ctx, q)
	if err != nil {
		log.Error().Err(err).Str("model", s.Embedder.Model()).Msg("query embedding failed")
		return nil, &index.EmbeddingProviderError{Err: err}
	}
	if len(vec) != ix.Dim() {
		return nil, &index.EmbeddingProviderError{
			Err: fmt.Errorf("query embedding has %d dimensions, index %q has %d", len(vec), ix.Model(), ix.Dim()),
		}
	}

	res, err := ix.Search(vec, k)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("k", k).Int("results", len(res)).Msg("query served")
	return res, nil
}

// Over binds the service to a single index.
func (s *Service) Over(ix *index.VectorIndex) Retriever {
	return bound{svc: s, ix: ix}
}

type bound struct {
	svc *Service
	ix  *index.VectorIndex
}

func (b bound) Retrieve(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	return b.svc.Query(ctx, b.ix, q, k)
}
