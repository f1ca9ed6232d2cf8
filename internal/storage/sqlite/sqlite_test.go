package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notechat/internal/storage"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "kv.db")
	s, err := Open(path)
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	ctx := context.Background()

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", []byte("one")))
	require.NoError(t, s.Save(ctx, "k", []byte("two")))
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err = s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}
