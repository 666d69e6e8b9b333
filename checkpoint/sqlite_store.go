package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// SQLiteStore は、チェックポイントを1行1スロットで保存する Store です。
// 本体は JSON で持ち、一覧用の列を別に持ちます。
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite は、path の SQLite データベースを開き、スキーマを用意します。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	cp.normalize()
	if err := cp.Validate(); err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: err}
	}
	body, err := json.Marshal(cp)
	if err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: fmt.Errorf("marshal: %w", err)}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO checkpoints (slot, id, saved_at, characters, body)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(slot) DO UPDATE SET
    id = excluded.id,
    saved_at = excluded.saved_at,
    characters = excluded.characters,
    body = excluded.body`,
		cp.Slot, cp.ID, toMillis(cp.SavedAt), len(cp.Snapshots), string(body),
	); err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: fmt.Errorf("upsert checkpoint: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, slot string) (Checkpoint, error) {
	var body string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT body FROM checkpoints WHERE slot = ?`, slot).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: ErrNotFound}
	}
	if err != nil {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: err}
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(body), &cp); err != nil {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: fmt.Errorf("unmarshal: %w", err)}
	}
	cp.normalize()
	if err := cp.Validate(); err != nil {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: err}
	}
	return cp, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT slot, id, saved_at, characters FROM checkpoints ORDER BY saved_at DESC, slot ASC`)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var (
			info    Info
			savedAt int64
		)
		if err := rows.Scan(&info.Slot, &info.ID, &savedAt, &info.Characters); err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		info.SavedAt = fromMillis(savedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return infos, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, slot string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM checkpoints WHERE slot = ?`, slot)
	if err != nil {
		return &PersistenceError{Op: "delete", Slot: slot, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "delete", Slot: slot, Err: err}
	}
	if n == 0 {
		return &PersistenceError{Op: "delete", Slot: slot, Err: ErrNotFound}
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
