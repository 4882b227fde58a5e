package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryon-server/modules/common/kvstore"
	"tryon-server/modules/common/model"
)

type failingKV struct {
	getErr error
	setErr error
}

func (f *failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, f.getErr
}

func (f *failingKV) Set(context.Context, string, string) error {
	return f.setErr
}

func tickingClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func TestStore_RecordNewestFirst(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	start := time.UnixMilli(1_700_000_000_000)
	store := NewStore(kv, "tryon_history").WithClock(tickingClock(start, time.Second))
	require.NoError(t, store.Load(ctx))

	const n = 5
	for i := 0; i < n; i++ {
		_, err := store.Record(ctx, fmt.Sprintf("person-%d", i), fmt.Sprintf("clothes-%d", i), fmt.Sprintf("result-%d", i))
		require.NoError(t, err)
	}

	items := store.List()
	require.Len(t, items, n)
	for i, item := range items {
		want := n - 1 - i
		assert.Equal(t, fmt.Sprintf("result-%d", want), item.ResultImage)
		assert.Equal(t, fmt.Sprintf("person-%d", want), item.PersonImage)
		assert.Equal(t, fmt.Sprintf("clothes-%d", want), item.ClothesImage)
	}
	assert.Equal(t, "1700000004000", items[0].ID)
	assert.Equal(t, int64(1700000004000), items[0].Timestamp)

	// 전체 배열이 저장되어 있어야 한다
	raw, ok, err := kv.Get(ctx, "tryon_history")
	require.NoError(t, err)
	require.True(t, ok)
	var persisted []model.HistoryItem
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	assert.Equal(t, items, persisted)
}

func TestStore_UniqueIDsWithinSameMillisecond(t *testing.T) {
	ctx := context.Background()
	fixed := time.UnixMilli(1_700_000_000_000)
	store := NewStore(kvstore.NewMemoryStore(), "h").WithClock(func() time.Time { return fixed })

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		item, err := store.Record(ctx, "p", "c", "r")
		require.NoError(t, err)
		assert.False(t, seen[item.ID], "duplicate id %s", item.ID)
		seen[item.ID] = true
	}
	assert.Equal(t, 4, store.Len())
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("restores persisted sequence", func(t *testing.T) {
		kv := kvstore.NewMemoryStore()
		first := NewStore(kv, "h")
		require.NoError(t, first.Load(ctx))
		_, err := first.Record(ctx, "p1", "c1", "r1")
		require.NoError(t, err)
		_, err = first.Record(ctx, "p2", "c2", "r2")
		require.NoError(t, err)

		second := NewStore(kv, "h")
		require.NoError(t, second.Load(ctx))
		assert.Equal(t, first.List(), second.List())
	})

	t.Run("malformed data starts empty", func(t *testing.T) {
		kv := kvstore.NewMemoryStore()
		require.NoError(t, kv.Set(ctx, "h", "{not json"))

		store := NewStore(kv, "h")
		require.NoError(t, store.Load(ctx))
		assert.Empty(t, store.List())

		// 이후 기록은 정상적으로 덮어쓴다
		_, err := store.Record(ctx, "p", "c", "r")
		require.NoError(t, err)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("backend error is returned", func(t *testing.T) {
		store := NewStore(&failingKV{getErr: errors.New("connection refused")}, "h")
		assert.Error(t, store.Load(ctx))
	})
}

func TestStore_RecordPersistFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore(&failingKV{setErr: errors.New("readonly")}, "h")
	require.NoError(t, store.Load(ctx))

	item, err := store.Record(ctx, "p", "c", "r")
	assert.Error(t, err)
	assert.Equal(t, "r", item.ResultImage)
	assert.Equal(t, 1, store.Len())
}

func TestStore_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemoryStore(), "h")
	_, err := store.Record(ctx, "p", "c", "r")
	require.NoError(t, err)

	items := store.List()
	items[0].ResultImage = "mutated"
	assert.Equal(t, "r", store.List()[0].ResultImage)
}

// slowKV - Set 이 release 될 때까지 대기
type slowKV struct {
	*kvstore.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowKV) Set(ctx context.Context, key, value string) error {
	close(s.entered)
	<-s.release
	return s.MemoryStore.Set(ctx, key, value)
}

func TestStore_ReadersDoNotWaitOnPersist(t *testing.T) {
	ctx := context.Background()
	kv := &slowKV{
		MemoryStore: kvstore.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	store := NewStore(kv, "tryon_history")

	done := make(chan error, 1)
	go func() {
		_, err := store.Record(ctx, "person", "clothes", "result")
		done <- err
	}()
	<-kv.entered

	read := make(chan int, 1)
	go func() {
		store.List()
		read <- store.Len()
	}()

	select {
	case n := <-read:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("List/Len blocked while history was being persisted")
	}

	close(kv.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.Len())
}
