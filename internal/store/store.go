// Package store persists a vector index and its source manifest in a
// directory: index.db (SQLite) and meta.json.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/solutionfinder/internal/document"
	"github.com/seanblong/solutionfinder/internal/index"
	"github.com/seanblong/solutionfinder/pkg/models"
	_ "modernc.org/sqlite"
)

const (
	IndexFile    = "index.db"
	ManifestFile = "meta.json"
	LockFile     = ".build.lock"

	driverName = "sqlite"
)

// Store reads and writes the persisted index under a single directory.
type Store struct {
	dir string
}

// IndexStore defines the methods that the Store must implement.
type IndexStore interface {
	Dir() string
	Exists() bool
	LoadIndex(ctx context.Context) (*index.VectorIndex, error)
	LoadManifest() (document.Manifest, error)
	Save(ctx context.Context, ix *index.VectorIndex, m document.Manifest) error
}

// New returns a Store rooted at dir. The directory is created on first save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) indexPath() string    { return filepath.Join(s.dir, IndexFile) }
func (s *Store) manifestPath() string { return filepath.Join(s.dir, ManifestFile) }

// LockPath is where the rebuild lock for this directory lives.
func (s *Store) LockPath() string { return filepath.Join(s.dir, LockFile) }

// Exists reports whether both the index and the manifest are on disk.
func (s *Store) Exists() bool {
	for _, p := range []string{s.indexPath(), s.manifestPath()} {
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			return false
		}
	}
	return true
}

const schema = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
  seq       INTEGER PRIMARY KEY,
  source    TEXT NOT NULL,
  ordinal   INTEGER NOT NULL,
  content   TEXT NOT NULL,
  embedding BLOB NOT NULL
);
`

// Migrate creates the tables on an open database.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

type chunkRow struct {
	Seq       int    `db:"seq"`
	Source    string `db:"source"`
	Ordinal   int    `db:"ordinal"`
	Content   string `db:"content"`
	Embedding []byte `db:"embedding"`
}

type metaRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Save writes the index, then the manifest. Each file is written to a
// temporary name and renamed into place; the old manifest is removed first so
// a crash between the two renames can never pair a stale manifest with a new
// index.
func (s *Store) Save(ctx context.Context, ix *index.VectorIndex, m document.Manifest) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp := s.indexPath() + ".tmp"
	_ = os.Remove(tmp)
	if err := writeIndex(ctx, tmp, ix); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Remove(s.manifestPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmp)
		return fmt.Errorf("remove stale manifest: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install index: %w", err)
	}
	if err := s.saveManifest(m); err != nil {
		return err
	}
	log.Debug().Str("dir", s.dir).Int("chunks", ix.Len()).Msg("index persisted")
	return nil
}

func writeIndex(ctx context.Context, path string, ix *index.VectorIndex) error {
	db, err := sqlx.ConnectContext(ctx, driverName, path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if err := Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	meta := []metaRow{
		{Key: "model", Value: ix.Model()},
		{Key: "dim", Value: strconv.Itoa(ix.Dim())},
	}
	for _, r := range meta {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO meta (key, value) VALUES (:key, :value)`, r); err != nil {
			return fmt.Errorf("write meta: %w", err)
		}
	}

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO chunks (seq, source, ordinal, content, embedding)
		VALUES (:seq, :source, :ordinal, :content, :embedding)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range ix.Entries() {
		row := chunkRow{
			Seq:       i,
			Source:    e.Chunk.Source,
			Ordinal:   e.Chunk.Ordinal,
			Content:   e.Chunk.Content,
			Embedding: encodeVector(e.Vector),
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("write chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadIndex reads index.db. A file that exists but cannot be decoded is
// reported as *index.PersistenceCorruptionError.
func (s *Store) LoadIndex(ctx context.Context) (*index.VectorIndex, error) {
	path := s.indexPath()
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	corrupt := func(err error) error {
		return &index.PersistenceCorruptionError{Path: path, Err: err}
	}

	db, err := sqlx.ConnectContext(ctx, driverName, path)
	if err != nil {
		return nil, corrupt(err)
	}
	defer db.Close()

	var meta []metaRow
	if err := db.SelectContext(ctx, &meta, `SELECT key, value FROM meta`); err != nil {
		return nil, corrupt(err)
	}
	var model string
	dim := -1
	for _, r := range meta {
		switch r.Key {
		case "model":
			model = r.Value
		case "dim":
			if dim, err = strconv.Atoi(r.Value); err != nil {
				return nil, corrupt(fmt.Errorf("dim: %w", err))
			}
		}
	}
	if dim < 0 {
		return nil, corrupt(errors.New("missing dim"))
	}

	var rows []chunkRow
	if err := db.SelectContext(ctx, &rows,
		`SELECT seq, source, ordinal, content, embedding FROM chunks ORDER BY seq`); err != nil {
		return nil, corrupt(err)
	}

	entries := make([]index.Entry, len(rows))
	for i, r := range rows {
		vec, err := decodeVector(r.Embedding)
		if err != nil {
			return nil, corrupt(fmt.Errorf("chunk %d: %w", r.Seq, err))
		}
		entries[i] = index.Entry{
			Chunk:  models.Chunk{Source: r.Source, Ordinal: r.Ordinal, Content: r.Content},
			Vector: vec,
		}
	}
	ix, err := index.New(model, dim, entries)
	if err != nil {
		return nil, corrupt(err)
	}
	return ix, nil
}

type manifestFile struct {
	Checksums document.Manifest `json:"checksums"`
}

// LoadManifest reads meta.json. A missing file returns an error satisfying
// errors.Is(err, os.ErrNotExist); an unreadable one is reported as
// *index.PersistenceCorruptionError.
func (s *Store) LoadManifest() (document.Manifest, error) {
	path := s.manifestPath()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf manifestFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return nil, &index.PersistenceCorruptionError{Path: path, Err: err}
	}
	if mf.Checksums == nil {
		return nil, &index.PersistenceCorruptionError{Path: path, Err: errors.New("missing checksums")}
	}
	return mf.Checksums, nil
}

func (s *Store) saveManifest(m document.Manifest) error {
	if m == nil {
		m = document.Manifest{}
	}
	b, err := json.MarshalIndent(manifestFile{Checksums: m}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, s.manifestPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install manifest: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
