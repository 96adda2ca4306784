package kv

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/contentflow/internal/testutil"
	"github.com/StricklySoft/contentflow/internal/testutil/fixtures"
)

// runStoreContract exercises the behaviour every Store must share. The
// integration suites call it against real backends.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("absent key", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "workflow:absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "workflow:a", []byte(`{"id":"a"}`), time.Hour))
		v, ok, err := s.Get(ctx, "workflow:a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"id":"a"}`, string(v))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "quota:2026-03-14", []byte("100"), time.Hour))
		require.NoError(t, s.Put(ctx, "quota:2026-03-14", []byte("250"), time.Hour))
		v, _, err := s.Get(ctx, "quota:2026-03-14")
		require.NoError(t, err)
		assert.Equal(t, "250", string(v))
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "alert:1", []byte("{}"), 0))
		require.NoError(t, s.Put(ctx, "alert:2", []byte("{}"), 0))
		require.NoError(t, s.Put(ctx, "abuse:1.2.3.4", []byte("{}"), 0))

		keys, err := s.List(ctx, PrefixAlert)
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"alert:1", "alert:2"}, keys)
	})

	t.Run("prefix wildcards are literal", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "odd_key", []byte("x"), 0))
		require.NoError(t, s.Put(ctx, "oddXkey", []byte("x"), 0))
		keys, err := s.List(ctx, "odd_")
		require.NoError(t, err)
		assert.Equal(t, []string{"odd_key"}, keys)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_TTL(t *testing.T) {
	clock := testutil.NewClock(fixtures.Now)
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abuse:1.2.3.4", []byte("{}"), 24*time.Hour))
	require.NoError(t, s.Put(ctx, "alert:x", []byte("{}"), 0))

	clock.Advance(24*time.Hour - time.Millisecond)
	_, ok, _ := s.Get(ctx, "abuse:1.2.3.4")
	assert.True(t, ok, "key must survive until its TTL elapses")

	clock.Advance(time.Millisecond)
	_, ok, _ = s.Get(ctx, "abuse:1.2.3.4")
	assert.False(t, ok, "key must expire exactly at its TTL")

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alert:x"}, keys)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", in, 0))
	in[0] = 'z'

	out, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "k", nil, 0), context.Canceled)
	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
