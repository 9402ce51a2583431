package server

import (
	"context"
	"errors"

	"github.com/holdemlabs/holdemd/pkg/poker"
)

// Ledger errors.
var (
	// ErrInsufficientChips is returned when an adjustment would drive
	// a balance negative.
	ErrInsufficientChips = errors.New("server: insufficient chips")
	// ErrUnknownUser is returned for balance queries on absent users.
	ErrUnknownUser = errors.New("server: unknown user")
)

// UserAccount is one row of the users table.
type UserAccount struct {
	ID        string
	Name      string
	Balance   int64
	CreatedAt string
	UpdatedAt string
}

// Ledger is the transactional chip store. It owns the users table and
// the append-only hand-history log; all balance mutation goes through
// it. Implementations must apply multi-row updates in a deterministic
// order to avoid deadlock, and must satisfy poker.HandRecorder so a
// table can persist a completed hand as one unit of work.
type Ledger interface {
	poker.HandRecorder

	// FindOrCreate returns the existing user or inserts one with the
	// configured starting balance; the display name is refreshed when
	// it changed.
	FindOrCreate(ctx context.Context, id, name string) (*UserAccount, error)

	// Balance returns the user's balance or ErrUnknownUser.
	Balance(ctx context.Context, id string) (int64, error)

	// Adjust applies a single delta inside a serialised transaction,
	// failing with ErrInsufficientChips if the result would be
	// negative.
	Adjust(ctx context.Context, id string, delta int64) error

	// AdjustMany applies every delta in one transaction: rows are
	// visited in sorted-id order, all validated, then all applied.
	AdjustMany(ctx context.Context, deltas map[string]int64) error

	// SaveHand appends one hand-history row and returns its id.
	SaveHand(ctx context.Context, rec *poker.HandRecord) (int64, error)

	Close() error
}
