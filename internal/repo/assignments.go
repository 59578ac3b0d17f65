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

const assignmentColumns = `id,quarter_id,tribe,app,resource_name,role,assignment_type,s1,s2,s3,s4,s5,s6,edited,created_at,updated_at`

// AssignmentFilters narrow a listing. Text fields match as case-insensitive
// substrings and combine with AND.
type AssignmentFilters struct {
	QuarterID string
	Tribe     string
	App       string
	Resource  string
	Role      string
	Type      string
}

func scanAssignment(row interface{ Scan(...any) error }) (domain.Assignment, error) {
	var a domain.Assignment
	var assignType string
	err := row.Scan(&a.ID, &a.QuarterID, &a.Tribe, &a.App, &a.ResourceName, &a.Role, &assignType,
		&a.Slots[0], &a.Slots[1], &a.Slots[2], &a.Slots[3], &a.Slots[4], &a.Slots[5],
		&a.Edited, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	a.AssignmentType = domain.ParseAssignType(assignType)
	return a, err
}

func scanAssignments(rows *sql.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	res := []domain.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func likeClause(column string) string {
	return "LOWER(" + column + `) LIKE ? ESCAPE '\'`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likeArg matches v as a literal substring.
func likeArg(v string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(v))) + "%"
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var clauses []string
	var args []any
	if f.QuarterID != "" {
		clauses = append(clauses, "quarter_id=?")
		args = append(args, f.QuarterID)
	}
	for _, c := range []struct{ column, value string }{
		{"tribe", f.Tribe},
		{"app", f.App},
		{"resource_name", f.Resource},
		{"role", f.Role},
		{"assignment_type", f.Type},
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
	rows, err := r.query(ctx, nil, fmt.Sprintf(`SELECT %s FROM assignments %s ORDER BY tribe, resource_name, role, app, id`, assignmentColumns, where), args...)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	return r.GetAssignmentTx(ctx, nil, id)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	return scanAssignment(r.queryRow(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id))
}

// FindAssignmentTx looks an assignment up by its natural key.
func (r Repo) FindAssignmentTx(ctx context.Context, tx *sql.Tx, quarterID string, key slots.TribeKey, app string) (domain.Assignment, error) {
	return scanAssignment(r.queryRow(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments WHERE quarter_id=? AND tribe=? AND app=? AND resource_name=? AND role=?`,
		quarterID, key.Tribe, app, key.ResourceName, key.Role))
}

// ListSlotAssignments returns the snapshot the availability engine reads:
// every assignment in the quarter on one resource/role.
func (r Repo) ListSlotAssignments(ctx context.Context, quarterID string, key slots.Key) ([]domain.Assignment, error) {
	return r.ListSlotAssignmentsTx(ctx, nil, quarterID, key)
}

func (r Repo) ListSlotAssignmentsTx(ctx context.Context, tx *sql.Tx, quarterID string, key slots.Key) ([]domain.Assignment, error) {
	rows, err := r.query(ctx, tx, `SELECT `+assignmentColumns+` FROM assignments WHERE quarter_id=? AND resource_name=? AND role=? ORDER BY id`,
		quarterID, key.ResourceName, key.Role)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

func (r Repo) InsertAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	s := a.Slots
	_, err := r.exec(ctx, tx, `INSERT INTO assignments(`+assignmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.QuarterID, a.Tribe, a.App, a.ResourceName, a.Role, string(a.AssignmentType),
		s[0], s[1], s[2], s[3], s[4], s[5], a.Edited, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateAssignmentSlotsTx replaces the whole vector and marks the row edited.
func (r Repo) UpdateAssignmentSlotsTx(ctx context.Context, tx *sql.Tx, id string, v slots.Vector, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE assignments SET s1=?,s2=?,s3=?,s4=?,s5=?,s6=?,edited=?,updated_at=? WHERE id=?`,
		v[0], v[1], v[2], v[3], v[4], v[5], true, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
