package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/neurite-core/internal/infrastructure/database"
)

// ErrNoIdentity is returned by RecordBoot before LoadOrCreate has run.
var ErrNoIdentity = errors.New("identity: no identity stored")

// Store persists the device identity and boot counter in SQLite.
// The schema comes from the device_identity migration.
type Store struct {
	db     *database.DB
	newUID func() string
	now    func() time.Time
}

// NewStore returns a store over a migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{
		db:     db,
		newUID: func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

// LoadOrCreate returns the stored uid, generating and saving one on first boot.
func (s *Store) LoadOrCreate(ctx context.Context) (string, error) {
	var uid string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT uid FROM device_identity WHERE id = 1").Scan(&uid)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading identity: %w", err)
		}

		uid = s.newUID()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO device_identity (id, uid, created_at) VALUES (1, ?, ?)",
			uid, s.now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("storing identity: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return uid, nil
}

// RecordBoot increments the boot counter and returns the new value.
func (s *Store) RecordBoot(ctx context.Context) (int, error) {
	var count int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE device_identity SET boot_count = boot_count + 1, last_boot = ? WHERE id = 1",
			s.now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("recording boot: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNoIdentity
		}
		return tx.QueryRowContext(ctx,
			"SELECT boot_count FROM device_identity WHERE id = 1",
		).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
