package notes

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notechat/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirStoreList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "alpha.md"), "alpha body")
	writeFile(t, filepath.Join(dir, "sub", "beta.txt"), "beta body")
	writeFile(t, filepath.Join(dir, "sub", "gamma.markdown"), "gamma body")
	writeFile(t, filepath.Join(dir, "image.png"), "binary")
	writeFile(t, filepath.Join(dir, ".obsidian", "cache.md"), "hidden")

	s := NewDirStore(dir)
	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "alpha", list[0].Title)
	assert.Equal(t, filepath.Join(dir, "alpha.md"), list[0].ID)
	assert.Equal(t, list[0].ID, list[0].Path)
	assert.Equal(t, "alpha body", list[0].Content)
	assert.False(t, list[0].UpdatedAt.IsZero())
	assert.Equal(t, "beta", list[1].Title)
	assert.Equal(t, "gamma", list[2].Title)
}

func TestDirStoreGlobAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "a")
	writeFile(t, filepath.Join(dir, "b.txt"), "b")

	s := NewDirStore(filepath.Join(dir, "*.md"), filepath.Join(dir, "a.md"))
	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Title)
}

func TestDirStoreMissingPath(t *testing.T) {
	s := NewDirStore(filepath.Join(t.TempDir(), "nope"))
	_, err := s.List(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStoreCRUD(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	defer s.Close()
	ctx := context.Background()

	when := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, domain.Note{ID: "b", Title: "B", Path: "b.md", Content: "bee", UpdatedAt: when}))
	require.NoError(t, s.Put(ctx, domain.Note{ID: "a", Title: "A", Path: "a.md", Content: "ay"}))
	require.NoError(t, s.Put(ctx, domain.Note{ID: "b", Title: "B2", Path: "b.md", Content: "bee 2", UpdatedAt: when}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "B2", list[1].Title)
	assert.Equal(t, "bee 2", list[1].Content)
	assert.True(t, when.Equal(list[1].UpdatedAt))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Error(t, s.Put(ctx, domain.Note{Title: "no id"}))
}

func TestSQLiteStoreImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vault", "one.md"), "one")
	writeFile(t, filepath.Join(dir, "vault", "two.md"), "two")

	s, err := OpenSQLite(filepath.Join(dir, "db", "notes.db"))
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	defer s.Close()

	n, err := s.Import(context.Background(), NewDirStore(filepath.Join(dir, "vault")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "one", list[0].Title)
}

type countingStore struct {
	notes []domain.Note
	calls int
}

func (c *countingStore) List(context.Context) ([]domain.Note, error) {
	c.calls++
	return c.notes, nil
}

func TestIndexCachesVectors(t *testing.T) {
	store := &countingStore{notes: []domain.Note{
		{ID: "1", Title: "Gardening", Content: "tomatoes need sun"},
		{ID: "2", Title: "Cooking", Content: "tomatoes make sauce"},
	}}
	ix := NewIndex(store, time.Minute)

	cands, err := ix.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, 1, cands[0].Vector["gardening"])
	assert.Equal(t, 1, cands[0].Vector["tomatoes"])
	assert.Equal(t, 2, ix.Cached())

	_, err = ix.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Cached())
	assert.Equal(t, 2, store.calls)

	store.notes[1].Content = "pasta"
	cands, err = ix.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cands[1].Vector["pasta"])
	assert.Zero(t, cands[1].Vector["tomatoes"])
	assert.Equal(t, 3, ix.Cached())
}
