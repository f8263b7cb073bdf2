// Copyright Project Contour Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package assignment

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const schema = `
CREATE TABLE IF NOT EXISTS assignments (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  timestamp INTEGER NOT NULL,
  data TEXT NOT NULL
);`

// SQLTable is a Table backed by an embedded, pure-Go sqlite database
// (modernc.org/sqlite, no cgo), matching spec.md §6's schema exactly.
type SQLTable struct {
	db *sql.DB
}

// OpenSQLTable opens (creating if absent) the sqlite database at path,
// or ":memory:" for an ephemeral store, and ensures the schema and the
// empty singleton row exist.
func OpenSQLTable(ctx context.Context, path string) (*SQLTable, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, path, err)
	}
	// sqlite serializes writers against a single file; a single
	// connection avoids "database is locked" under concurrent CAS
	// attempts from this process.
	db.SetMaxOpenConns(1)

	t := &SQLTable{db: db}
	if err := t.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

// Close releases the underlying database handle.
func (t *SQLTable) Close() error {
	return t.db.Close()
}

func (t *SQLTable) Init(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrStoreUnavailable, err)
	}
	if _, err := t.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assignments (id, timestamp, data) VALUES (1, 0, ?)`, emptySARecord); err != nil {
		return fmt.Errorf("%w: seed empty record: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (t *SQLTable) Get(ctx context.Context) (*SliceAssignments, int64, error) {
	var (
		version int64
		data    string
	)
	row := t.db.QueryRowContext(ctx, `SELECT timestamp, data FROM assignments WHERE id = 1`)
	if err := row.Scan(&version, &data); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sa, err := unmarshalSA([]byte(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decode record: %v", ErrStoreUnavailable, err)
	}
	return sa, version, nil
}

func (t *SQLTable) CAS(ctx context.Context, sa *SliceAssignments, expectedVersion int64) (bool, int64, error) {
	data, err := marshalSA(sa)
	if err != nil {
		return false, 0, fmt.Errorf("%w: encode record: %v", ErrStoreUnavailable, err)
	}

	newVersion := nowMillis()
	if newVersion <= expectedVersion {
		newVersion = expectedVersion + 1
	}

	res, err := t.db.ExecContext(ctx,
		`UPDATE assignments SET timestamp = ?, data = ? WHERE id = 1 AND timestamp = ?`,
		newVersion, data, expectedVersion)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		// Lost the race; the caller re-reads and publishes the winner.
		return false, expectedVersion, nil
	}
	return true, newVersion, nil
}

func (t *SQLTable) Ping(ctx context.Context) error {
	return t.db.PingContext(ctx)
}
