package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(id, requestID string) Record {
	return Record{
		ApprovalID:  id,
		RequestID:   requestID,
		RequesterID: "U1",
		OwnerID:     "U2",
		RequestType: RequestTypeGCP,
		LicenceKey:  "GS1-1",
		Timestamp:   time.Now().Unix(),
		IsActive:    true,
	}
}

func TestMemoryInsertRejectsDuplicateKey(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	first := testRecord("A1", "R1")
	rcpt, err := m.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, rcpt.Recorded)
	assert.Equal(t, int64(1), rcpt.BlockNumber)
	assert.NotEmpty(t, rcpt.TxHash)

	// Same key, different payload: strict reject, first write wins.
	_, err = m.Insert(ctx, testRecord("A1", "R2"))
	require.ErrorIs(t, err, ErrDuplicateKey)

	got, err := m.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "R1", got.RequestID)
}

func TestMemoryDeactivateIsOneWayAndNonIdempotent(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	_, err := m.Insert(ctx, testRecord("A1", "R1"))
	require.NoError(t, err)

	rcpt, err := m.Deactivate(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, rcpt.Recorded)

	got, err := m.Get(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Second call is an error, not a silent success.
	_, err = m.Deactivate(ctx, "A1")
	require.ErrorIs(t, err, ErrAlreadyInactive)

	got, err = m.Get(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, got.IsActive, "failed deactivate must not change state")

	_, err = m.Deactivate(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCountAndIDByIndexFollowInsertionOrder(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	ids := []string{"A1", "A2", "A3", "A4", "A5"}
	for i, id := range ids {
		_, err := m.Insert(ctx, testRecord(id, fmt.Sprintf("R%d", i)))
		require.NoError(t, err)
	}
	// Interleaved reads and deactivations must not disturb the order.
	_, err := m.Deactivate(ctx, "A2")
	require.NoError(t, err)
	_, err = m.Get(ctx, "A4")
	require.NoError(t, err)

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), n)

	for i, want := range ids {
		got, err := m.IDByIndex(ctx, int64(i))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = m.IDByIndex(ctx, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = m.IDByIndex(ctx, int64(len(ids)))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMemoryGetUnknownID(t *testing.T) {
	m := NewMemoryBackend()
	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBlockNumbersAreMonotonic(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		rcpt, err := m.Insert(ctx, testRecord(fmt.Sprintf("A%d", i), "R"))
		require.NoError(t, err)
		assert.Greater(t, rcpt.BlockNumber, last)
		last = rcpt.BlockNumber
	}
	rcpt, err := m.Deactivate(ctx, "A0")
	require.NoError(t, err)
	assert.Greater(t, rcpt.BlockNumber, last)
}
