package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Insert(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entries(at, kind, menu_id, value, correlation, status, source, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, toUnixMillis(e.At), string(e.Kind), nullableMenuID(e.MenuID), e.Value, e.Correlation, e.Status, e.Source, e.Detail)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	return nil
}

// History returns matching entries, newest first.
func (r *Repo) History(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if len(q.MenuIDs) > 0 {
		where = append(where, "menu_id IN ("+placeholders(len(q.MenuIDs))+")")
		for _, id := range q.MenuIDs {
			args = append(args, id)
		}
	}
	if len(q.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(q.Kinds))+")")
		for _, k := range q.Kinds {
			args = append(args, string(k))
		}
	}
	if !q.Since.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, toUnixMillis(q.Since))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `SELECT id, at, kind, menu_id, value, correlation, status, source, detail FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			at     int64
			kind   string
			menuID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &at, &kind, &menuID, &e.Value, &e.Correlation, &e.Status, &e.Source, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.At = fromUnixMillis(at)
		e.Kind = Kind(kind)
		e.MenuID = -1
		if menuID.Valid {
			e.MenuID = int(menuID.Int64)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}

	return out, nil
}

// Prune deletes entries recorded before cutoff and reports how many went.
func (r *Repo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE at < ?`, toUnixMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}

	return n, nil
}

//goland:noinspection SqlWithoutWhere
func (r *Repo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entries;`); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}

	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullableMenuID(id int) any {
	if id < 0 {
		return nil
	}

	return int64(id)
}

func toUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func fromUnixMillis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(v)
}
