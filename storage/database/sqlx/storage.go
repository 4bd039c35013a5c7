package sqlxstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
)

type Storage struct {
	db *sqlx.DB
}

var (
	_ core.StorageCloser = (*Storage)(nil)
	_ core.Pinger        = (*Storage)(nil)
)

// NewStorage stores items in the local_storage table created by the migrations.
func NewStorage(db *sql.DB, driverName string) *Storage {
	return &Storage{db: sqlx.NewDb(db, driverName)}
}

type item struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *Storage) GetItem(key string) ([]byte, bool, error) {
	var it item
	q := s.db.Rebind(`SELECT key, value, updated_at FROM local_storage WHERE key = ?`)
	if err := s.db.Get(&it, q, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "selecting %s", key)
	}
	return it.Value, true, nil
}

func (s *Storage) SetItem(key string, value []byte) error {
	q := s.db.Rebind(`
		INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`)
	if _, err := s.db.Exec(q, key, value, time.Now().UTC()); err != nil {
		return errors.Wrapf(err, "upserting %s", key)
	}
	return nil
}

func (s *Storage) RemoveItem(key string) error {
	q := s.db.Rebind(`DELETE FROM local_storage WHERE key = ?`)
	if _, err := s.db.Exec(q, key); err != nil {
		return errors.Wrapf(err, "deleting %s", key)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}
