package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	metadata   BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps records in a SQLite database. Bodies are zstd
// compressed, metadata is stored as JSON.
type SQLiteStore struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	if path == ":memory:" {
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, encoder: encoder, decoder: decoder}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (Record, bool, error) {
	var body, meta []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body, metadata FROM entries WHERE key = ?`, key,
	).Scan(&body, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load %s: %w", key, err)
	}

	plain, err := s.decoder.DecodeAll(body, nil)
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: body: %v", ErrMalformedEntry, err)
	}

	var metadata map[string]string
	if err := sonic.Unmarshal(meta, &metadata); err != nil {
		return Record{}, false, fmt.Errorf("%w: metadata: %v", ErrMalformedEntry, err)
	}

	return Record{Body: plain, Metadata: metadata}, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, rec Record) error {
	meta, err := sonic.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	body := s.encoder.EncodeAll(rec.Body, nil)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (key, body, metadata, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, metadata = excluded.metadata, updated_at = excluded.updated_at`,
		key, body, meta, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key, most recently written first.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM entries ORDER BY updated_at DESC, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close releases the database and codecs.
func (s *SQLiteStore) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}
