package repo

import (
	"context"
	"database/sql"
	"errors"

	"sprintbook/internal/domain"
)

const quarterColumns = `id,name,is_current,created_at`

func scanQuarter(row interface{ Scan(...any) error }) (domain.Quarter, error) {
	var q domain.Quarter
	err := row.Scan(&q.ID, &q.Name, &q.IsCurrent, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	return q, err
}

func (r Repo) InsertQuarterTx(ctx context.Context, tx *sql.Tx, q domain.Quarter) error {
	_, err := r.exec(ctx, tx, `INSERT INTO quarters(id,name,is_current,created_at) VALUES (?,?,?,?)`,
		q.ID, q.Name, q.IsCurrent, q.CreatedAt)
	return err
}

func (r Repo) GetQuarter(ctx context.Context, id string) (domain.Quarter, error) {
	return scanQuarter(r.queryRow(ctx, nil, `SELECT `+quarterColumns+` FROM quarters WHERE id=?`, id))
}

func (r Repo) GetQuarterByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.Quarter, error) {
	return scanQuarter(r.queryRow(ctx, tx, `SELECT `+quarterColumns+` FROM quarters WHERE name=?`, name))
}

// CurrentQuarter returns the quarter flagged current.
func (r Repo) CurrentQuarter(ctx context.Context) (domain.Quarter, error) {
	return scanQuarter(r.queryRow(ctx, nil, `SELECT `+quarterColumns+` FROM quarters WHERE is_current=? ORDER BY created_at DESC LIMIT 1`, true))
}

func (r Repo) ListQuarters(ctx context.Context) ([]domain.Quarter, error) {
	rows, err := r.query(ctx, nil, `SELECT `+quarterColumns+` FROM quarters ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Quarter{}
	for rows.Next() {
		q, err := scanQuarter(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// SetCurrentQuarterTx clears the flag everywhere and sets it on id.
func (r Repo) SetCurrentQuarterTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := r.exec(ctx, tx, `UPDATE quarters SET is_current=? WHERE id<>?`, false, id); err != nil {
		return err
	}
	res, err := r.exec(ctx, tx, `UPDATE quarters SET is_current=? WHERE id=?`, true, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
