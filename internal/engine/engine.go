package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sprintbook/internal/archive"
	"sprintbook/internal/config"
	"sprintbook/internal/db"
	"sprintbook/internal/domain"
	"sprintbook/internal/events"
	"sprintbook/internal/logging"
	"sprintbook/internal/metrics"
	"sprintbook/internal/notify"
	"sprintbook/internal/repo"
)

const notifyTimeout = 2 * time.Second

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Now      func() time.Time
	Locks    *Locks
	Notifier notify.Publisher
	Archive  archive.Store
	Metrics  *metrics.Booking
	Log      *zap.Logger
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       conn,
		Repo:     repo.Repo{DB: conn, Dialect: dialect},
		Events:   events.Writer{Dialect: dialect},
		Config:   cfg,
		Now:      time.Now,
		Locks:    NewLocks(),
		Notifier: notify.Nop{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Log)
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// publish runs after the transaction committed. Failures are logged only.
func (e Engine) publish(ctx context.Context, c notify.Change) {
	if e.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := e.Notifier.Publish(ctx, c); err != nil {
		e.Metrics.NotifyFailed()
		e.log().Warn("change notification failed",
			zap.String("assignment_id", c.AssignmentID), zap.Error(err))
	}
}

// CurrentQuarter returns the quarter flagged current.
func (e Engine) CurrentQuarter(ctx context.Context) (domain.Quarter, error) {
	q, err := e.Repo.CurrentQuarter(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return q, fmt.Errorf("no current quarter is set: %w", repo.ErrNotFound)
	}
	return q, err
}

// SetCurrentQuarter creates the quarter if needed and makes it the only
// current one.
func (e Engine) SetCurrentQuarter(ctx context.Context, name string) (domain.Quarter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Quarter{}, validationf("quarter name is required")
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Quarter{}, storageErr("begin", err)
	}
	defer tx.Rollback()

	q, err := e.Repo.GetQuarterByNameTx(ctx, tx, name)
	if errors.Is(err, repo.ErrNotFound) {
		q = domain.Quarter{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: domain.FormatTime(e.now()),
		}
		if err := e.Repo.InsertQuarterTx(ctx, tx, q); err != nil {
			return domain.Quarter{}, storageErr("insert quarter", err)
		}
	} else if err != nil {
		return domain.Quarter{}, storageErr("load quarter", err)
	}
	if err := e.Repo.SetCurrentQuarterTx(ctx, tx, q.ID); err != nil {
		return domain.Quarter{}, storageErr("set current quarter", err)
	}
	q.IsCurrent = true
	if err := e.events().Append(ctx, tx, events.QuarterSetCurrent, q.ID, "quarter", q.ID, "", events.EventPayload{"name": q.Name}); err != nil {
		return domain.Quarter{}, storageErr("append event", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Quarter{}, storageErr("commit", err)
	}
	e.log().Info("current quarter set", zap.String("quarter", q.Name))
	return q, nil
}

// ExportRows returns the filtered assignments of a quarter. An empty result is
// a validation error so callers never hand out an empty file.
func (e Engine) ExportRows(ctx context.Context, f repo.AssignmentFilters) ([]domain.Assignment, error) {
	rows, err := e.Repo.ListAssignments(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, validationf("nothing to export")
	}
	return rows, nil
}
