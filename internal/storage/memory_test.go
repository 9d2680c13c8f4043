package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("hello"), 0))
	value, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", string(value))
}

func TestMemoryStoreGetMissingKey(t *testing.T) {
	s := NewMemoryStore()
	_, found, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Now()
	s.nowFunc = func() time.Time { return fixed }

	require.NoError(t, s.Set(context.Background(), "k1", []byte("v"), 1))

	s.nowFunc = func() time.Time { return fixed.Add(2 * time.Second) }
	_, found, err := s.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k1", []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, "k1"))
	_, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStoreAppendAndLog(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "log1", []byte("one")))
	require.NoError(t, s.Append(ctx, "log1", []byte("two")))

	entries, err := s.Log(ctx, "log1")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, entries)
}

func TestMemoryStoreAppendTrimsToMaxEntries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < MaxLogEntries+10; i++ {
		require.NoError(t, s.Append(ctx, "log1", []byte("x")))
	}
	entries, err := s.Log(ctx, "log1")
	require.NoError(t, err)
	require.Len(t, entries, MaxLogEntries)
}
