package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/seanblong/solutionfinder/internal/document"
	"github.com/seanblong/solutionfinder/internal/index"
	"github.com/seanblong/solutionfinder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIndex(t *testing.T) *index.VectorIndex {
	t.Helper()
	ix, err := index.New("stub", 3, []index.Entry{
		{Chunk: models.Chunk{Source: "a.pdf", Ordinal: 0, Content: "first"}, Vector: []float32{1, 0, 0}},
		{Chunk: models.Chunk{Source: "a.pdf", Ordinal: 1, Content: "second"}, Vector: []float32{0, 1, 0}},
		{Chunk: models.Chunk{Source: "b.txt", Ordinal: 0, Content: "third ünïcode"}, Vector: []float32{0, 0.6, 0.8}},
	})
	require.NoError(t, err)
	return ix
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "nested", "index"))
	assert.False(t, s.Exists())

	ix := sampleIndex(t)
	m := document.Manifest{"a.pdf": "aaa", "b.txt": "bbb"}
	require.NoError(t, s.Save(ctx, ix, m))
	assert.True(t, s.Exists())

	got, err := s.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stub", got.Model())
	assert.Equal(t, 3, got.Dim())
	assert.Equal(t, ix.Chunks(), got.Chunks())
	for i, e := range got.Entries() {
		assert.InDeltaSlice(t, ix.Entries()[i].Vector, e.Vector, 1e-7)
	}

	gotM, err := s.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, m, gotM)

	_, err = os.Stat(filepath.Join(s.Dir(), IndexFile+".tmp"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(filepath.Join(s.Dir(), ManifestFile+".tmp"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	require.NoError(t, s.Save(ctx, sampleIndex(t), document.Manifest{"a.pdf": "1"}))

	small, err := index.New("stub", 3, []index.Entry{
		{Chunk: models.Chunk{Source: "c.md", Content: "only"}, Vector: []float32{1, 1, 1}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, small, document.Manifest{"c.md": "2"}))

	got, err := s.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, "c.md", got.Chunks()[0].Source)

	m, err := s.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, document.Manifest{"c.md": "2"}, m)
}

func TestSaveEmptyIndex(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	empty, err := index.New("stub", 8, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, empty, nil))

	got, err := s.LoadIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, 8, got.Dim())

	m, err := s.LoadManifest()
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadMissing(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.LoadIndex(context.Background())
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = s.LoadManifest()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		bytes string
		load  func(*Store) error
	}{
		{
			name:  "garbage index",
			file:  IndexFile,
			bytes: "this is not sqlite at all, just some bytes that keep going for a while........",
			load: func(s *Store) error {
				_, err := s.LoadIndex(context.Background())
				return err
			},
		},
		{
			name:  "garbage manifest",
			file:  ManifestFile,
			bytes: "{not json",
			load: func(s *Store) error {
				_, err := s.LoadManifest()
				return err
			},
		},
		{
			name:  "manifest without checksums",
			file:  ManifestFile,
			bytes: `{"other": 1}`,
			load: func(s *Store) error {
				_, err := s.LoadManifest()
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.bytes), 0o644))

			err := tt.load(New(dir))
			var ce *index.PersistenceCorruptionError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, filepath.Join(dir, tt.file), ce.Path)
		})
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestInterfaceCompliance(t *testing.T) {
	var _ IndexStore = (*Store)(nil)
	assert.Equal(t, filepath.Join("x", LockFile), New("x").LockPath())
}
