package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sprintbook/internal/domain"
	"sprintbook/internal/slots"
)

const tempColumns = `id,quarter_id,tribe,app,resource_name,role,assign_type,reserved`

type TempFilters struct {
	QuarterID string
	Tribe     string
	App       string
	Resource  string
	Role      string
	Type      string
}

func scanTemp(row interface{ Scan(...any) error }) (domain.TempAssignment, error) {
	var t domain.TempAssignment
	var assignType string
	err := row.Scan(&t.ID, &t.QuarterID, &t.Tribe, &t.App, &t.ResourceName, &t.Role, &assignType, &t.Reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.AssignType = domain.ParseAssignType(assignType)
	return t, err
}

func scanTemps(rows *sql.Rows) ([]domain.TempAssignment, error) {
	defer rows.Close()
	res := []domain.TempAssignment{}
	for rows.Next() {
		t, err := scanTemp(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTempAssignments(ctx context.Context, f TempFilters) ([]domain.TempAssignment, error) {
	var clauses []string
	var args []any
	if f.QuarterID != "" {
		clauses = append(clauses, "quarter_id=?")
		args = append(args, f.QuarterID)
	}
	if f.Type != "" {
		clauses = append(clauses, "LOWER(assign_type)=?")
		args = append(args, strings.ToLower(strings.TrimSpace(f.Type)))
	}
	for _, c := range []struct{ column, value string }{
		{"tribe", f.Tribe},
		{"app", f.App},
		{"resource_name", f.Resource},
		{"role", f.Role},
	} {
		if strings.TrimSpace(c.value) == "" {
			continue
		}
		clauses = append(clauses, likeClause(c.column))
		args = append(args, likeArg(c.value))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.query(ctx, nil, fmt.Sprintf(`SELECT %s FROM temp_assignments %s ORDER BY tribe, resource_name, role, app, id`, tempColumns, where), args...)
	if err != nil {
		return nil, err
	}
	return scanTemps(rows)
}

func (r Repo) GetTempAssignment(ctx context.Context, id string) (domain.TempAssignment, error) {
	return r.GetTempAssignmentTx(ctx, nil, id)
}

func (r Repo) GetTempAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.TempAssignment, error) {
	return scanTemp(r.queryRow(ctx, tx, `SELECT `+tempColumns+` FROM temp_assignments WHERE id=?`, id))
}

// FindTempForTribeTx returns the temp row that sets the tribe's policy on a
// resource/role. A row for app wins; otherwise the one with the largest
// reservation.
func (r Repo) FindTempForTribeTx(ctx context.Context, tx *sql.Tx, quarterID string, key slots.TribeKey, app string) (*domain.TempAssignment, error) {
	rows, err := r.query(ctx, tx, `SELECT `+tempColumns+` FROM temp_assignments WHERE quarter_id=? AND tribe=? AND resource_name=? AND role=? ORDER BY reserved DESC, id`,
		quarterID, key.Tribe, key.ResourceName, key.Role)
	if err != nil {
		return nil, err
	}
	temps, err := scanTemps(rows)
	if err != nil {
		return nil, err
	}
	if len(temps) == 0 {
		return nil, nil
	}
	for i := range temps {
		if temps[i].App == app {
			return &temps[i], nil
		}
	}
	return &temps[0], nil
}

// ListResourceTempsTx returns every temp row on a resource/role.
func (r Repo) ListResourceTempsTx(ctx context.Context, tx *sql.Tx, quarterID string, key slots.Key) ([]domain.TempAssignment, error) {
	rows, err := r.query(ctx, tx, `SELECT `+tempColumns+` FROM temp_assignments WHERE quarter_id=? AND resource_name=? AND role=? ORDER BY tribe, id`,
		quarterID, key.ResourceName, key.Role)
	if err != nil {
		return nil, err
	}
	return scanTemps(rows)
}

func (r Repo) InsertTempAssignmentTx(ctx context.Context, tx *sql.Tx, t domain.TempAssignment) error {
	_, err := r.exec(ctx, tx, `INSERT INTO temp_assignments(`+tempColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.QuarterID, t.Tribe, t.App, t.ResourceName, t.Role, string(t.AssignType), t.Reserved)
	return err
}

// UpsertTempAssignmentTx updates type and reservation for an existing natural
// key, inserting otherwise. It returns the stored id.
func (r Repo) UpsertTempAssignmentTx(ctx context.Context, tx *sql.Tx, t domain.TempAssignment) (string, error) {
	var id string
	err := r.queryRow(ctx, tx, `SELECT id FROM temp_assignments WHERE quarter_id=? AND tribe=? AND app=? AND resource_name=? AND role=?`,
		t.QuarterID, t.Tribe, t.App, t.ResourceName, t.Role).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return t.ID, r.InsertTempAssignmentTx(ctx, tx, t)
	case err != nil:
		return "", err
	}
	_, err = r.exec(ctx, tx, `UPDATE temp_assignments SET assign_type=?, reserved=? WHERE id=?`, string(t.AssignType), t.Reserved, id)
	return id, err
}

func (r Repo) DeleteQuarterTempsTx(ctx context.Context, tx *sql.Tx, quarterID string) (int64, error) {
	res, err := r.exec(ctx, tx, `DELETE FROM temp_assignments WHERE quarter_id=?`, quarterID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
