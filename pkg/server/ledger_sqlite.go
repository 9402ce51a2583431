package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holdemlabs/holdemd/pkg/poker"
	"github.com/holdemlabs/holdemd/pkg/server/internal/db"
)

// sqliteLedger adapts the internal db package to the Ledger interface,
// mapping its sentinels onto the server's.
type sqliteLedger struct {
	db *db.DB
}

// NewLedger opens the sqlite ledger behind the given DSN, creating the
// parent directory and schema as needed.
func NewLedger(dsn string, startingBalance int64) (Ledger, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	d, err := db.NewDB(dsn, startingBalance)
	if err != nil {
		return nil, err
	}
	return &sqliteLedger{db: d}, nil
}

func (l *sqliteLedger) FindOrCreate(ctx context.Context, id, name string) (*UserAccount, error) {
	u, err := l.db.FindOrCreate(ctx, id, name)
	if err != nil {
		return nil, mapLedgerErr(err)
	}
	return &UserAccount{
		ID:        u.ID,
		Name:      u.Name,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}, nil
}

func (l *sqliteLedger) Balance(ctx context.Context, id string) (int64, error) {
	balance, err := l.db.Balance(ctx, id)
	return balance, mapLedgerErr(err)
}

func (l *sqliteLedger) Adjust(ctx context.Context, id string, delta int64) error {
	return mapLedgerErr(l.db.Adjust(ctx, id, delta))
}

func (l *sqliteLedger) AdjustMany(ctx context.Context, deltas map[string]int64) error {
	return mapLedgerErr(l.db.AdjustMany(ctx, deltas))
}

func (l *sqliteLedger) SaveHand(ctx context.Context, rec *poker.HandRecord) (int64, error) {
	id, err := l.db.SaveHand(ctx, rec)
	return id, mapLedgerErr(err)
}

func (l *sqliteLedger) CommitHand(ctx context.Context, rec *poker.HandRecord, deltas map[string]int64) error {
	return mapLedgerErr(l.db.CommitHand(ctx, rec, deltas))
}

func (l *sqliteLedger) Close() error {
	return l.db.Close()
}

func mapLedgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrInsufficientChips):
		return fmt.Errorf("%w: %v", ErrInsufficientChips, err)
	case errors.Is(err, db.ErrUnknownUser):
		return fmt.Errorf("%w: %v", ErrUnknownUser, err)
	default:
		return err
	}
}
