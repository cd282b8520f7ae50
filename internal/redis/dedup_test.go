package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suji-games/leaderboard-service/internal/domain"
)

func TestDeduperSeenAndRecord(t *testing.T) {
	client, _ := newTestClient(t)
	d := NewDeduper(client, 24*time.Hour, testLogger())
	ctx := context.Background()

	dup, err := d.SeenAndRecord(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = d.SeenAndRecord(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, dup)

	// Different event IDs do not collide
	dup, err = d.SeenAndRecord(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestDeduperMarkerExpiry(t *testing.T) {
	client, mr := newTestClient(t)
	d := NewDeduper(client, 24*time.Hour, testLogger())
	ctx := context.Background()

	dup, err := d.SeenAndRecord(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, dup)

	// Before the window closes, still a duplicate
	mr.FastForward(23 * time.Hour)
	dup, err = d.SeenAndRecord(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, dup)

	// After the marker window lapses the event is treated as new again
	mr.FastForward(2 * time.Hour)
	dup, err = d.SeenAndRecord(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestDeduperUnrecord(t *testing.T) {
	client, _ := newTestClient(t)
	d := NewDeduper(client, 24*time.Hour, testLogger())
	ctx := context.Background()

	_, err := d.SeenAndRecord(ctx, "evt-1")
	require.NoError(t, err)

	// Dropping the marker makes a redelivery look fresh
	d.Unrecord(ctx, "evt-1")

	dup, err := d.SeenAndRecord(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestDeduperBackendDown(t *testing.T) {
	client, mr := newTestClient(t)
	d := NewDeduper(client, 24*time.Hour, testLogger())

	mr.Close()

	_, err := d.SeenAndRecord(context.Background(), "evt-1")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}
