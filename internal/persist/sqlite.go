// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package persist

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"grimm.is/airwall/internal/clock"
	"grimm.is/airwall/internal/errors"
	"grimm.is/airwall/internal/logging"
	"grimm.is/airwall/internal/profile"
)

// SQLiteStore persists profiles as JSON documents, one row per profile,
// and the stable MAC assignments alongside.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens or creates the registry database.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "open registry db")
	}

	s := &SQLiteStore{db: db, logger: logging.WithComponent("persist")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindUnavailable, "init registry schema")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		partition TEXT NOT NULL,
		key TEXT NOT NULL,
		doc TEXT NOT NULL,
		updated INTEGER NOT NULL,
		PRIMARY KEY (partition, key)
	);
	CREATE TABLE IF NOT EXISTS mac_addresses (
		key TEXT PRIMARY KEY,
		mac TEXT NOT NULL,
		updated INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SavePartition replaces the partition's rows with the given profiles in
// one transaction.
func (s *SQLiteStore) SavePartition(ctx context.Context, partition string, profiles []*profile.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "begin save")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM profiles WHERE partition = ?", partition); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "clear partition")
	}

	now := clock.Now().Unix()
	for _, p := range profiles {
		doc, err := json.Marshal(p)
		if err != nil {
			return errors.Wrapf(err, errors.KindInternal, "encode profile %q", p.Key())
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO profiles (partition, key, doc, updated) VALUES (?, ?, ?, ?)",
			partition, p.Key(), string(doc), now)
		if err != nil {
			return errors.Wrapf(err, errors.KindUnavailable, "insert profile %q", p.Key())
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "commit save")
	}
	s.logger.Debug("partition saved", "partition", partition, "profiles", len(profiles))
	return nil
}

// LoadPartition reads a partition back. Unknown partitions are empty.
func (s *SQLiteStore) LoadPartition(ctx context.Context, partition string) ([]*profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, doc FROM profiles WHERE partition = ? ORDER BY key", partition)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "query partition")
	}
	defer rows.Close()

	var out []*profile.Profile
	for rows.Next() {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, errors.Wrap(err, errors.KindUnavailable, "scan profile row")
		}
		var p profile.Profile
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "decode profile %q", key)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// LookupMAC returns the stored stable address for a profile key.
func (s *SQLiteStore) LookupMAC(key string) (string, bool) {
	var mac string
	err := s.db.QueryRow("SELECT mac FROM mac_addresses WHERE key = ?", key).Scan(&mac)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("mac lookup failed", "key", key, "error", err)
		}
		return "", false
	}
	return mac, true
}

// SaveMAC stores the stable address for a profile key.
func (s *SQLiteStore) SaveMAC(key, mac string) error {
	_, err := s.db.Exec(
		"INSERT INTO mac_addresses (key, mac, updated) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET mac = excluded.mac, updated = excluded.updated",
		key, mac, clock.Now().Unix())
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "save mac")
	}
	return nil
}
