// Package db implements the chip ledger on sqlite via database/sql.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/holdemlabs/holdemd/pkg/poker"
)

// Sentinel errors re-declared here so the package has no import cycle
// with its consumer; the server layer maps them onto its own set.
var (
	ErrInsufficientChips = fmt.Errorf("db: insufficient chips")
	ErrUnknownUser       = fmt.Errorf("db: unknown user")
)

// DB is the ledger database connection.
type DB struct {
	*sql.DB
	startingBalance int64
}

// NewDB opens (creating if missing) the ledger database. New users are
// seeded with startingBalance chips.
func NewDB(dsn string, startingBalance int64) (*DB, error) {
	sdb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection runs every transaction alone, which stands
	// in for a row lock on the users being adjusted.
	sdb.SetMaxOpenConns(1)

	if err := createTables(sdb); err != nil {
		sdb.Close()
		return nil, err
	}

	return &DB{DB: sdb, startingBalance: startingBalance}, nil
}

func createTables(sdb *sql.DB) error {
	_, err := sdb.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance INTEGER NOT NULL CHECK (balance >= 0),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = sdb.Exec(`
		CREATE TABLE IF NOT EXISTS hand_histories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id TEXT NOT NULL,
			hand TEXT NOT NULL,
			winners TEXT NOT NULL,
			pot INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// FindOrCreate returns the existing user row or inserts a new one with
// the configured starting balance, refreshing the name when changed.
func (db *DB) FindOrCreate(ctx context.Context, id, name string) (*User, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, name, balance)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = CURRENT_TIMESTAMP
	`, id, name, db.startingBalance)
	if err != nil {
		return nil, fmt.Errorf("find-or-create user %s: %w", id, err)
	}

	u := &User{}
	err = db.QueryRowContext(ctx,
		"SELECT id, name, balance, created_at, updated_at FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("read user %s: %w", id, err)
	}
	return u, nil
}

// User is one row of the users table.
type User struct {
	ID        string
	Name      string
	Balance   int64
	CreatedAt string
	UpdatedAt string
}

// Balance returns the user's current balance.
func (db *DB) Balance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := db.QueryRowContext(ctx, "SELECT balance FROM users WHERE id = ?", id).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", id, err)
	}
	return balance, nil
}

// Adjust applies a single delta inside a serialised transaction.
func (db *DB) Adjust(ctx context.Context, id string, delta int64) error {
	return db.AdjustMany(ctx, map[string]int64{id: delta})
}

// AdjustMany applies every delta in one transaction. Rows are visited
// in sorted-id order so concurrent multi-row updates cannot deadlock;
// all deltas are validated before any is applied.
func (db *DB) AdjustMany(ctx context.Context, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := adjustManyTx(ctx, tx, deltas); err != nil {
		return err
	}
	return tx.Commit()
}

func adjustManyTx(ctx context.Context, tx *sql.Tx, deltas map[string]int64) error {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Validate everything before touching anything.
	for _, id := range ids {
		var balance int64
		err := tx.QueryRowContext(ctx, "SELECT balance FROM users WHERE id = ?", id).Scan(&balance)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrUnknownUser, id)
		}
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", id, err)
		}
		if balance+deltas[id] < 0 {
			return fmt.Errorf("%w: %s has %d, delta %d", ErrInsufficientChips, id, balance, deltas[id])
		}
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, deltas[id], id); err != nil {
			return fmt.Errorf("apply delta %s: %w", id, err)
		}
	}
	return nil
}

// SaveHand appends one hand-history row and returns the assigned id.
func (db *DB) SaveHand(ctx context.Context, rec *poker.HandRecord) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := saveHandTx(ctx, tx, rec)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func saveHandTx(ctx context.Context, tx *sql.Tx, rec *poker.HandRecord) (int64, error) {
	blob, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal hand record: %w", err)
	}
	winnerIDs := make([]string, 0, len(rec.Winners))
	for _, w := range rec.Winners {
		winnerIDs = append(winnerIDs, w.PlayerID)
	}
	winners, err := json.Marshal(winnerIDs)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO hand_histories (table_id, hand, winners, pot)
		VALUES (?, ?, ?, ?)
	`, rec.TableID, string(blob), string(winners), rec.PotTotal)
	if err != nil {
		return 0, fmt.Errorf("insert hand history: %w", err)
	}
	return res.LastInsertId()
}

// CommitHand persists a completed hand's chip deltas and its history
// record in a single transaction, satisfying poker.HandRecorder. The
// balance updates come first; failure of either part rolls back both.
func (db *DB) CommitHand(ctx context.Context, rec *poker.HandRecord, deltas map[string]int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := adjustManyTx(ctx, tx, deltas); err != nil {
		return err
	}
	if _, err := saveHandTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
