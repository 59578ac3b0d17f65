package repo

import (
	"context"
	"database/sql"

	"sprintbook/internal/domain"
	"sprintbook/internal/slots"
)

// SlotClaim records which tribe holds one sprint of a resource/role.
type SlotClaim struct {
	Sprint int
	Tribe  string
}

// RebuildSlotClaimsTx rewrites the claim index for one resource/role from the
// given assignments. The primary key rejects two tribes on the same sprint.
func (r Repo) RebuildSlotClaimsTx(ctx context.Context, tx *sql.Tx, quarterID string, key slots.Key, assignments []domain.Assignment) error {
	if _, err := r.exec(ctx, tx, `DELETE FROM slot_claims WHERE quarter_id=? AND resource_name=? AND role=?`,
		quarterID, key.ResourceName, key.Role); err != nil {
		return err
	}
	type claim struct {
		sprint int
		tribe  string
	}
	seen := map[claim]struct{}{}
	for _, a := range assignments {
		if a.ResourceName != key.ResourceName || a.Role != key.Role {
			continue
		}
		for _, s := range a.Slots.Sprints() {
			c := claim{sprint: s, tribe: a.Tribe}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			if _, err := r.exec(ctx, tx, `INSERT INTO slot_claims(quarter_id,resource_name,role,sprint,tribe) VALUES (?,?,?,?,?)`,
				quarterID, key.ResourceName, key.Role, s, a.Tribe); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r Repo) ListSlotClaims(ctx context.Context, quarterID string, key slots.Key) ([]SlotClaim, error) {
	rows, err := r.query(ctx, nil, `SELECT sprint,tribe FROM slot_claims WHERE quarter_id=? AND resource_name=? AND role=? ORDER BY sprint`,
		quarterID, key.ResourceName, key.Role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []SlotClaim{}
	for rows.Next() {
		var c SlotClaim
		if err := rows.Scan(&c.Sprint, &c.Tribe); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
