// Package loader returns a ready vector index for a set of source documents,
// reusing the persisted index when its manifest still matches and rebuilding
// it otherwise. Results are cached for the life of the process.
package loader

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/document"
	"github.com/seanblong/solutionfinder/internal/index"
	"github.com/seanblong/solutionfinder/internal/store"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle position of one path set.
type State int

const (
	Uninitialized State = iota
	Validating
	Reusing
	Rebuilding
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Validating:
		return "VALIDATING"
	case Reusing:
		return "REUSING"
	case Rebuilding:
		return "REBUILDING"
	case Ready:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// Builder produces and persists a fresh index for paths.
type Builder interface {
	Build(ctx context.Context, paths []string) (*index.VectorIndex, error)
	Model() string
}

type entry struct {
	state   State
	ix      *index.VectorIndex
	rebuilt bool
}

// Loader is safe for concurrent use.
type Loader struct {
	store   store.IndexStore
	builder Builder
	reader  document.Reader
	lockAt  string

	group singleflight.Group
	mu    sync.Mutex
	keys  map[string]*entry
}

// New creates a Loader over s that reads sources from the local filesystem
// and locks <dir>/.build.lock while validating or rebuilding.
func New(s *store.Store, b Builder) *Loader {
	return NewWithDependencies(s, b, document.OSReader{}, s.LockPath())
}

// NewWithDependencies creates a Loader with custom dependencies for testing
func NewWithDependencies(s store.IndexStore, b Builder, r document.Reader, lockPath string) *Loader {
	return &Loader{
		store:   s,
		builder: b,
		reader:  r,
		lockAt:  lockPath,
		keys:    make(map[string]*entry),
	}
}

// Get returns the index for paths. The first call for a path set validates
// the persisted index and rebuilds it when stale; later calls return the
// cached index without touching storage.
//
// Concurrent calls for one path set share a single load. The load is not
// tied to any one caller's cancellation; each caller stops waiting when its
// own ctx is done.
func (l *Loader) Get(ctx context.Context, paths []string) (*index.VectorIndex, error) {
	key := document.Key(paths)
	if ix, ok := l.ready(key); ok {
		return ix, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		if ix, ok := l.ready(key); ok {
			return ix, nil
		}
		return l.load(shared, key, paths)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*index.VectorIndex), nil
	}
}

// State reports where the path set is in its lifecycle.
func (l *Loader) State(paths []string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.keys[document.Key(paths)]; ok {
		return e.state
	}
	return Uninitialized
}

// Rebuilt reports whether the ready index for paths came from a rebuild
// rather than the persisted copy.
func (l *Loader) Rebuilt(paths []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[document.Key(paths)]
	return ok && e.state == Ready && e.rebuilt
}

func (l *Loader) ready(key string) (*index.VectorIndex, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.keys[key]; ok && e.state == Ready {
		return e.ix, true
	}
	return nil, false
}

func (l *Loader) setState(key string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{}
		l.keys[key] = e
	}
	e.state = s
}

func (l *Loader) finish(key string, ix *index.VectorIndex, rebuilt bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[key] = &entry{state: Ready, ix: ix, rebuilt: rebuilt}
}

func (l *Loader) load(ctx context.Context, key string, paths []string) (ix *index.VectorIndex, err error) {
	paths = document.Normalize(paths)
	slices.Sort(paths)

	l.setState(key, Validating)
	defer func() {
		if err != nil {
			l.setState(key, Uninitialized)
		}
	}()

	lock := NewFileLock(l.lockAt)
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			log.Warn().Err(uerr).Str("lock", lock.Path()).Msg("release build lock")
		}
	}()

	current, err := document.ComputeManifest(l.reader, paths)
	if err != nil {
		return nil, err
	}

	if ix, ok := l.reuse(ctx, current); ok {
		l.setState(key, Reusing)
		log.Info().Int("documents", len(paths)).Int("chunks", ix.Len()).Msg("reusing persisted index")
		l.finish(key, ix, false)
		return ix, nil
	}

	l.setState(key, Rebuilding)
	log.Info().Int("documents", len(paths)).Str("dir", l.store.Dir()).Msg("rebuilding index")
	ix, err = l.builder.Build(ctx, paths)
	if err != nil {
		return nil, err
	}
	l.finish(key, ix, true)
	return ix, nil
}

// reuse loads the persisted index when its manifest equals current and it
// was embedded with the builder's model. Corrupt files are logged and
// treated as stale.
func (l *Loader) reuse(ctx context.Context, current document.Manifest) (*index.VectorIndex, bool) {
	if !l.store.Exists() {
		log.Debug().Str("dir", l.store.Dir()).Msg("no persisted index")
		return nil, false
	}

	persisted, err := l.store.LoadManifest()
	if err != nil {
		logLoadFailure(err, "manifest")
		return nil, false
	}
	if !persisted.Equal(current) {
		log.Info().Int("persisted", len(persisted)).Int("current", len(current)).Msg("manifest changed")
		return nil, false
	}

	ix, err := l.store.LoadIndex(ctx)
	if err != nil {
		logLoadFailure(err, "index")
		return nil, false
	}
	if model := l.builder.Model(); ix.Model() != model {
		log.Info().Str("persisted", ix.Model()).Str("current", model).Msg("embedding model changed")
		return nil, false
	}
	return ix, true
}

func logLoadFailure(err error, what string) {
	var ce *index.PersistenceCorruptionError
	switch {
	case errors.As(err, &ce):
		log.Warn().Err(err).Str("path", ce.Path).Msgf("persisted %s is corrupt, rebuilding", what)
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Err(err).Msgf("persisted %s missing", what)
	default:
		log.Warn().Err(err).Msgf("cannot read persisted %s, rebuilding", what)
	}
}
