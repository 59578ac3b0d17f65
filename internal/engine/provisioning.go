package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sprintbook/internal/archive"
	"sprintbook/internal/domain"
	"sprintbook/internal/events"
	"sprintbook/internal/export"
	"sprintbook/internal/provision"
	"sprintbook/internal/repo"
)

// ImportResult summarizes a provisioning import.
type ImportResult struct {
	Validation provision.Validation
	Imported   int
	Cleared    int64
	Archived   string
}

// ImportTempAssignments loads a provisioning sheet into a quarter's temp
// holds. Sheets with over-reserved resources are refused. With replace the
// quarter's existing holds are archived and removed first.
func (e Engine) ImportTempAssignments(ctx context.Context, quarterID string, rows []provision.Row, replace bool) (ImportResult, error) {
	check := provision.Check(rows)
	res := ImportResult{Validation: check}
	if !check.OK {
		details := make([]string, 0, len(check.Conflicts))
		for _, c := range check.Conflicts {
			details = append(details, fmt.Sprintf("%s reserved %d sprints (rows %s)", c.Resource, c.TotalReserved, joinInts(c.Rows)))
		}
		return res, &ValidationError{Message: "provisioning conflicts: resources reserved for more than 6 sprints", Details: details}
	}
	if len(check.Rows) == 0 {
		return res, validationf("sheet has no rows")
	}
	q, err := e.Repo.GetQuarter(ctx, quarterID)
	if err != nil {
		return res, fmt.Errorf("quarter %s: %w", quarterID, err)
	}

	if replace {
		loc, err := e.archiveTemps(ctx, q)
		if err != nil {
			return res, err
		}
		res.Archived = loc
	}

	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return res, storageErr("begin", err)
	}
	defer tx.Rollback()
	if replace {
		n, err := e.Repo.DeleteQuarterTempsTx(ctx, tx, q.ID)
		if err != nil {
			return res, storageErr("clear temp holds", err)
		}
		res.Cleared = n
		if err := e.events().Append(ctx, tx, events.QuarterTempsCleared, q.ID, "quarter", q.ID, "", events.EventPayload{
			"cleared": n, "archive": res.Archived,
		}); err != nil {
			return res, storageErr("append event", err)
		}
	}
	for _, row := range check.Rows {
		t := domain.TempAssignment{
			ID:           uuid.NewString(),
			QuarterID:    q.ID,
			Tribe:        row.Tribe,
			App:          row.App,
			ResourceName: row.Resource,
			Role:         row.Role,
			AssignType:   check.Types[row.Resource],
			Reserved:     row.Reserved,
		}
		if _, err := e.Repo.UpsertTempAssignmentTx(ctx, tx, t); err != nil {
			return res, storageErr(fmt.Sprintf("import line %d", row.Line), err)
		}
		res.Imported++
	}
	if err := e.events().Append(ctx, tx, events.TempsImported, q.ID, "quarter", q.ID, "", events.EventPayload{
		"rows": res.Imported, "replace": replace,
	}); err != nil {
		return res, storageErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return res, storageErr("commit", err)
	}
	e.log().Info("temp holds imported", zap.String("quarter", q.Name), zap.Int("rows", res.Imported), zap.Bool("replace", replace))
	return res, nil
}

func (e Engine) archiveTemps(ctx context.Context, q domain.Quarter) (string, error) {
	if e.Archive == nil {
		return "", nil
	}
	temps, err := e.Repo.ListTempAssignments(ctx, repo.TempFilters{QuarterID: q.ID})
	if err != nil {
		return "", err
	}
	if len(temps) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := export.WriteTemps(&buf, temps, export.CSV); err != nil {
		return "", err
	}
	return e.putArchive(ctx, q, "temp-assignments", buf.Bytes())
}

// ArchiveQuarter writes the quarter's assignments as CSV to the archive store.
func (e Engine) ArchiveQuarter(ctx context.Context, quarterID string) (string, error) {
	if e.Archive == nil {
		return "", validationf("no archive store configured")
	}
	q, err := e.Repo.GetQuarter(ctx, quarterID)
	if err != nil {
		return "", fmt.Errorf("quarter %s: %w", quarterID, err)
	}
	rows, err := e.ExportRows(ctx, repo.AssignmentFilters{QuarterID: q.ID})
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := export.WriteAssignments(&buf, rows, export.CSV); err != nil {
		return "", err
	}
	return e.putArchive(ctx, q, "assignments", buf.Bytes())
}

func (e Engine) putArchive(ctx context.Context, q domain.Quarter, kind string, data []byte) (string, error) {
	stamp := e.now().UTC().Format("20060102T150405Z")
	prefix := ""
	if e.Config != nil {
		prefix = e.Config.Archive.Prefix
	}
	key := archive.Key(prefix, q.Name, fmt.Sprintf("%s-%s.csv", kind, stamp))
	loc, err := e.Archive.Put(ctx, key, data, export.CSV.ContentType())
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", kind, err)
	}
	e.log().Info("archived", zap.String("quarter", q.Name), zap.String("location", loc))
	return loc, nil
}

func joinInts(in []int) string {
	parts := make([]string, len(in))
	for i, v := range in {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
