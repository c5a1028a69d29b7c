package webstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	// journalKeep bounds the events table; subscribers further behind miss changes.
	journalKeep = 1000
)

var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage 基于 SQLite 文件的存储句柄。每个句柄独立打开数据库，
// 变更写入 events 日志表，订阅者轮询该表
type SQLiteStorage struct {
	db     *sql.DB
	origin string
	poll   time.Duration
}

// OpenSQLite opens a tab on the database at dbPath, creating it if needed.
func OpenSQLite(dbPath string, poll time.Duration) (*SQLiteStorage, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if poll <= 0 {
		poll = defaultPollInterval
	}
	s := &SQLiteStorage{db: db, origin: uuid.NewString(), poll: poll}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		removed INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate storage: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStorage) Set(ctx context.Context, key, value string) error {
	return s.write(ctx, key, func(tx *sql.Tx) (bool, error) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value)
		return err == nil, err
	}, Event{Key: key, Value: value})
}

func (s *SQLiteStorage) Remove(ctx context.Context, key string) error {
	return s.write(ctx, key, func(tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	}, Event{Key: key, Removed: true})
}

// write applies change and, if it reports a change, journals ev in the same transaction.
func (s *SQLiteStorage) write(ctx context.Context, key string, change func(*sql.Tx) (bool, error), ev Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	changed, err := change(tx)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if !changed {
		return tx.Commit()
	}

	removed := 0
	if ev.Removed {
		removed = 1
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (origin, key, value, removed) VALUES (?, ?, ?, ?)`,
		s.origin, ev.Key, ev.Value, removed)
	if err != nil {
		return fmt.Errorf("failed to journal %s: %w", key, err)
	}
	if id, err := res.LastInsertId(); err == nil && id > journalKeep {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id <= ?`, id-journalKeep); err != nil {
			return fmt.Errorf("failed to prune journal: %w", err)
		}
	}
	return tx.Commit()
}

// Subscribe starts from the current end of the journal and polls for newer
// entries. fn runs on the polling goroutine and must not close the subscription itself.
func (s *SQLiteStorage) Subscribe(ctx context.Context, fn func(Event)) (Subscription, error) {
	var cursor int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&cursor); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	sub := &sqliteSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				next, err := s.deliver(pollCtx, cursor, fn)
				if err != nil {
					if pollCtx.Err() == nil {
						slog.Warn("storage poll failed", "component", "webstore", "error", err)
					}
					continue
				}
				cursor = next
			}
		}
	}()
	return sub, nil
}

// deliver hands fn every foreign event after cursor and returns the new cursor.
func (s *SQLiteStorage) deliver(ctx context.Context, cursor int64, fn func(Event)) (int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, origin, key, value, removed FROM events WHERE id > ? ORDER BY id`, cursor)
	if err != nil {
		return cursor, err
	}

	type row struct {
		id     int64
		origin string
		ev     Event
	}
	var batch []row
	for rows.Next() {
		var r row
		var removed int
		if err := rows.Scan(&r.id, &r.origin, &r.ev.Key, &r.ev.Value, &removed); err != nil {
			rows.Close()
			return cursor, err
		}
		r.ev.Removed = removed != 0
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return cursor, err
	}
	rows.Close()

	// 释放连接后再回调，回调中可以读写存储
	for _, r := range batch {
		cursor = r.id
		if r.origin != s.origin {
			fn(r.ev)
		}
	}
	return cursor, nil
}

// Close 关闭数据库连接
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type sqliteSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *sqliteSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
