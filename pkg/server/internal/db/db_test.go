package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holdemlabs/holdemd/pkg/poker"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := NewDB(filepath.Join(t.TempDir(), "ledger.sqlite"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestFindOrCreateSeedsStartingBalance(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	u, err := d.FindOrCreate(ctx, "p1", "Alice")
	require.NoError(t, err)
	require.Equal(t, int64(1000), u.Balance)
	require.Equal(t, "Alice", u.Name)

	// Idempotent, but the display name refreshes.
	u2, err := d.FindOrCreate(ctx, "p1", "Alice2")
	require.NoError(t, err)
	require.Equal(t, int64(1000), u2.Balance, "existing balance untouched")
	require.Equal(t, "Alice2", u2.Name)
}

func TestBalanceUnknownUser(t *testing.T) {
	d := newTestDB(t)
	_, err := d.Balance(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownUser)
}

// Scenario: win 500, then an overdraft attempt fails and leaves the
// balance untouched.
func TestAdjustAndInsufficientChips(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	_, err := d.FindOrCreate(ctx, "p1", "Alice")
	require.NoError(t, err)

	require.NoError(t, d.Adjust(ctx, "p1", 500))
	balance, err := d.Balance(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(1500), balance)

	err = d.Adjust(ctx, "p1", -2000)
	require.ErrorIs(t, err, ErrInsufficientChips)

	balance, err = d.Balance(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(1500), balance, "failed adjustment must not move chips")
}

func TestAdjustManyIsAtomic(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := d.FindOrCreate(ctx, id, id)
		require.NoError(t, err)
	}

	// p3 cannot cover -1500; nothing may be applied.
	err := d.AdjustMany(ctx, map[string]int64{"p1": 500, "p2": 1000, "p3": -1500})
	require.ErrorIs(t, err, ErrInsufficientChips)

	for _, id := range []string{"p1", "p2", "p3"} {
		balance, err := d.Balance(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(1000), balance, "%s must be untouched", id)
	}

	// A valid zero-sum batch applies everywhere.
	require.NoError(t, d.AdjustMany(ctx, map[string]int64{"p1": 500, "p2": -300, "p3": -200}))
	b1, _ := d.Balance(ctx, "p1")
	b2, _ := d.Balance(ctx, "p2")
	b3, _ := d.Balance(ctx, "p3")
	require.Equal(t, int64(1500), b1)
	require.Equal(t, int64(700), b2)
	require.Equal(t, int64(800), b3)
	require.Equal(t, int64(3000), b1+b2+b3, "zero-sum batch conserves chips")
}

func sampleRecord() *poker.HandRecord {
	return &poker.HandRecord{
		TableID:   "t1",
		HandNum:   3,
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
		Winners:   []poker.WinnerRecord{{PlayerID: "p1", Seat: 0, Amount: 60}},
		Pots:      []poker.PotRecord{{Amount: 60, Eligible: []string{"p1", "p2"}}},
		PotTotal:  60,
	}
}

func TestSaveHandAppends(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	id1, err := d.SaveHand(ctx, sampleRecord())
	require.NoError(t, err)
	id2, err := d.SaveHand(ctx, sampleRecord())
	require.NoError(t, err)
	require.Greater(t, id2, id1, "hand history ids are monotone")

	var blob, winners string
	var pot int64
	err = d.QueryRowContext(ctx,
		"SELECT hand, winners, pot FROM hand_histories WHERE id = ?", id1).
		Scan(&blob, &winners, &pot)
	require.NoError(t, err)
	require.Equal(t, int64(60), pot)

	var rec poker.HandRecord
	require.NoError(t, json.Unmarshal([]byte(blob), &rec))
	require.Equal(t, uint64(3), rec.HandNum)

	var winnerIDs []string
	require.NoError(t, json.Unmarshal([]byte(winners), &winnerIDs))
	require.Equal(t, []string{"p1"}, winnerIDs)
}

func TestCommitHandIsOneUnitOfWork(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		_, err := d.FindOrCreate(ctx, id, id)
		require.NoError(t, err)
	}

	require.NoError(t, d.CommitHand(ctx, sampleRecord(), map[string]int64{"p1": 60, "p2": -60}))

	b1, _ := d.Balance(ctx, "p1")
	b2, _ := d.Balance(ctx, "p2")
	require.Equal(t, int64(1060), b1)
	require.Equal(t, int64(940), b2)

	// A failing delta rolls back the history insert too.
	var before int
	require.NoError(t, d.QueryRowContext(ctx, "SELECT COUNT(*) FROM hand_histories").Scan(&before))

	err := d.CommitHand(ctx, sampleRecord(), map[string]int64{"p1": 10, "p2": -5000})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInsufficientChips))

	var after int
	require.NoError(t, d.QueryRowContext(ctx, "SELECT COUNT(*) FROM hand_histories").Scan(&after))
	require.Equal(t, before, after, "no hand row without the balance updates")

	b1, _ = d.Balance(ctx, "p1")
	require.Equal(t, int64(1060), b1, "rolled back")
}
