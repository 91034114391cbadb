package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTranscriptRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTranscriptRepository(0)

	tr, err := r.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, tr.Messages)

	require.NoError(t, r.Append(ctx, "c1", schema.UserMessage("hi")))
	require.NoError(t, r.Append(ctx, "c1", schema.AssistantMessage("hello", nil), schema.UserMessage("bye")))

	n, err := r.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tr, err = r.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, tr.Messages, 3)
	assert.Equal(t, "hello", tr.Messages[1].Content)

	require.NoError(t, r.Clear(ctx, "c1"))
	n, err = r.Count(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryTranscriptRepositoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewMemoryTranscriptRepository(time.Hour)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Append(ctx, "c1", schema.UserMessage("hi")))

	now = now.Add(59 * time.Minute)
	n, _ := r.Count(ctx, "c1")
	assert.Equal(t, 1, n)

	// appending extends the TTL
	require.NoError(t, r.Append(ctx, "c1", schema.UserMessage("again")))
	now = now.Add(59 * time.Minute)
	n, _ = r.Count(ctx, "c1")
	assert.Equal(t, 2, n)

	now = now.Add(2 * time.Minute)
	n, _ = r.Count(ctx, "c1")
	assert.Zero(t, n)

	require.NoError(t, r.Append(ctx, "c1", schema.UserMessage("fresh")))
	tr, err := r.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, tr.Messages, 1)
	assert.Equal(t, "fresh", tr.Messages[0].Content)
}

func TestMemoryTranscriptRepositoryDropsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewMemoryTranscriptRepository(time.Minute)
	r.now = func() time.Time { return now }

	for i := 0; i < 1000; i++ {
		require.NoError(t, r.Append(ctx, fmt.Sprintf("conv-%d", i), schema.UserMessage("hi")))
	}
	assert.Equal(t, 1000, r.Len())

	now = now.Add(5 * time.Minute)
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Append(ctx, fmt.Sprintf("new-%d", i), schema.UserMessage("hi")))
	}
	assert.Equal(t, 10, r.Len())

	n, err := r.Count(ctx, "conv-0")
	require.NoError(t, err)
	assert.Zero(t, n)
}
