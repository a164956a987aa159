package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryAppendAssignsMonotonicTimestamps(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	log := NewInMemoryWithClock(func() time.Time { return fixed })
	ctx := context.Background()

	first, err := log.Append(ctx, "topic-a", []byte(`{"seq":1}`))
	require.NoError(t, err)
	second, err := log.Append(ctx, "topic-a", []byte(`{"seq":2}`))
	require.NoError(t, err)

	require.True(t, second.ConsensusTime.After(first.ConsensusTime),
		"consensus timestamps must be strictly increasing within a topic")
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, uint64(2), second.Sequence)
}

func TestInMemoryCollectReturnsSnapshot(t *testing.T) {
	log := NewInMemory()
	ctx := context.Background()

	_, err := log.Append(ctx, "topic-a", []byte("a"))
	require.NoError(t, err)
	_, err = log.Append(ctx, "topic-b", []byte("b"))
	require.NoError(t, err)

	entries, err := log.Collect(ctx, "topic-a", time.Second)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("a"), entries[0].Contents)

	// Mutating the snapshot must not affect the log.
	entries[0].Contents[0] = 'z'
	again, err := log.Collect(ctx, "topic-a", time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), again[0].Contents)
}

func TestInMemoryCollectHonorsContext(t *testing.T) {
	log := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := log.Collect(ctx, "topic-a", time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryCollectUnknownTopicIsEmpty(t *testing.T) {
	log := NewInMemory()

	entries, err := log.Collect(context.Background(), "missing", time.Second)
	require.NoError(t, err)
	require.Empty(t, entries)
}
