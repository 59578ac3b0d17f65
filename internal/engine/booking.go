package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sprintbook/internal/availability"
	"sprintbook/internal/domain"
	"sprintbook/internal/events"
	"sprintbook/internal/metrics"
	"sprintbook/internal/notify"
	"sprintbook/internal/repo"
	"sprintbook/internal/slots"
)

// CommitResult is the outcome of a successful commit pipeline.
type CommitResult struct {
	Assignment domain.Assignment
	// Unchanged is set when the proposal equals the stored vector; nothing
	// was written.
	Unchanged bool
	// Availability is the tribe's view after the commit.
	Availability availability.Result
}

// CommitSlots replaces the slot vector of an assignment. Checks run in order:
// existence, acting tribe, conflicts with other tribes, the tribe's cap, and
// finally whether anything changed at all.
func (e Engine) CommitSlots(ctx context.Context, assignmentID string, proposed slots.Vector, actorTribe string) (CommitResult, error) {
	return e.CommitSlotsPatch(ctx, assignmentID, func(slots.Vector) slots.Vector { return proposed }, actorTribe)
}

// Patch derives the proposed vector from the stored one.
type Patch func(stored slots.Vector) slots.Vector

// CommitSlotsPatch is CommitSlots for partial edits: patch runs against the
// vector read under the slot lock, so concurrent edits of different sprints
// on one assignment all survive.
func (e Engine) CommitSlotsPatch(ctx context.Context, assignmentID string, patch Patch, actorTribe string) (CommitResult, error) {
	start := time.Now()
	res, err := e.commitSlots(ctx, assignmentID, patch, actorTribe)
	e.observe("commit", assignmentID, actorTribe, res, err, time.Since(start))
	return res, err
}

func (e Engine) commitSlots(ctx context.Context, assignmentID string, patch Patch, actorTribe string) (CommitResult, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("assignment %s: %w", assignmentID, err)
	}
	if err := checkActor(a.Tribe, actorTribe); err != nil {
		return CommitResult{}, err
	}
	unlock := e.Locks.Lock(a.QuarterID, a.SlotKey())
	defer unlock()

	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return CommitResult{}, storageErr("begin", err)
	}
	defer tx.Rollback()
	if err := e.Repo.LockSlotTx(ctx, tx, a.QuarterID, a.ResourceName, a.Role); err != nil {
		return CommitResult{}, storageErr("lock slot", err)
	}
	// re-read under the lock; the row may have moved since the first read
	a, err = e.Repo.GetAssignmentTx(ctx, tx, assignmentID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("assignment %s: %w", assignmentID, err)
	}
	res, err := e.commitTx(ctx, tx, a, patch(a.Slots), actorTribe)
	if err != nil || res.Unchanged {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return CommitResult{}, storageErr("commit", err)
	}
	e.publishCommit(ctx, res.Assignment)
	return res, nil
}

// commitTx is the shared validate-and-write pipeline. It never commits tx.
func (e Engine) commitTx(ctx context.Context, tx *sql.Tx, a domain.Assignment, proposed slots.Vector, actorTribe string) (CommitResult, error) {
	if err := checkActor(a.Tribe, actorTribe); err != nil {
		return CommitResult{}, err
	}
	temp, err := e.Repo.FindTempForTribeTx(ctx, tx, a.QuarterID, a.TribeKey(), a.App)
	if err != nil {
		return CommitResult{}, storageErr("load capacity policy", err)
	}
	policy := availability.ResolvePolicy(temp, a.AssignmentType)
	snapshot, err := e.Repo.ListSlotAssignmentsTx(ctx, tx, a.QuarterID, a.SlotKey())
	if err != nil {
		return CommitResult{}, storageErr("load snapshot", err)
	}
	others := availability.ComputeExcluding(snapshot, a.TribeKey(), policy, a.ID)
	verdict := availability.Evaluate(others, proposed)
	if len(verdict.Conflicts) > 0 {
		return CommitResult{}, &SlotConflictError{Sprints: verdict.Conflicts}
	}
	if verdict.CapExceeded() {
		return CommitResult{}, &CapExceededError{Cap: verdict.Cap, Requested: verdict.TotalAfter}
	}
	if proposed == a.Slots {
		return CommitResult{
			Assignment:   a,
			Unchanged:    true,
			Availability: availability.Compute(snapshot, a.TribeKey(), policy),
		}, nil
	}

	previous := a.Slots
	a.Slots = proposed
	a.Edited = true
	a.UpdatedAt = domain.FormatTime(e.now())
	if err := e.Repo.UpdateAssignmentSlotsTx(ctx, tx, a.ID, a.Slots, a.UpdatedAt); err != nil {
		return CommitResult{}, storageErr("update slots", err)
	}
	for i := range snapshot {
		if snapshot[i].ID == a.ID {
			snapshot[i] = a
		}
	}
	if err := e.Repo.RebuildSlotClaimsTx(ctx, tx, a.QuarterID, a.SlotKey(), snapshot); err != nil {
		return CommitResult{}, storageErr("rebuild slot claims", err)
	}
	if err := e.events().Append(ctx, tx, events.SlotsCommitted, a.QuarterID, "assignment", a.ID, actorTribe, events.EventPayload{
		"resource_name": a.ResourceName,
		"role":          a.Role,
		"previous":      previous.Sprints(),
		"slots":         a.Slots.Sprints(),
	}); err != nil {
		return CommitResult{}, storageErr("append event", err)
	}
	return CommitResult{
		Assignment:   a,
		Availability: availability.Compute(snapshot, a.TribeKey(), policy),
	}, nil
}

// ConfirmBooking books chosen sprints against a temp hold. The target
// assignment is created on first use; sprints the tribe already holds are
// ignored and the rest are added to what it has.
func (e Engine) ConfirmBooking(ctx context.Context, tempID string, chosen []int, actorTribe string) (CommitResult, error) {
	start := time.Now()
	res, err := e.confirmBooking(ctx, tempID, chosen, actorTribe)
	e.observe("confirm", tempID, actorTribe, res, err, time.Since(start))
	return res, err
}

func (e Engine) confirmBooking(ctx context.Context, tempID string, chosen []int, actorTribe string) (CommitResult, error) {
	if len(chosen) == 0 {
		return CommitResult{}, validationf("pick at least one sprint")
	}
	requested, err := slots.FromSprints(chosen)
	if err != nil {
		return CommitResult{}, &ValidationError{Message: "invalid sprint index", Details: []string{err.Error()}}
	}
	temp, err := e.Repo.GetTempAssignment(ctx, tempID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("temp assignment %s: %w", tempID, err)
	}
	if err := checkActor(temp.Tribe, actorTribe); err != nil {
		return CommitResult{}, err
	}
	key := temp.TribeKey()
	unlock := e.Locks.Lock(temp.QuarterID, key.Slot())
	defer unlock()

	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return CommitResult{}, storageErr("begin", err)
	}
	defer tx.Rollback()
	if err := e.Repo.LockSlotTx(ctx, tx, temp.QuarterID, temp.ResourceName, temp.Role); err != nil {
		return CommitResult{}, storageErr("lock slot", err)
	}

	snapshot, err := e.Repo.ListSlotAssignmentsTx(ctx, tx, temp.QuarterID, key.Slot())
	if err != nil {
		return CommitResult{}, storageErr("load snapshot", err)
	}
	held := availability.Compute(snapshot, key, availability.PolicyFor(temp.AssignType, temp.Reserved)).Mine
	additions := requested.AndNot(held)

	a, err := e.Repo.FindAssignmentTx(ctx, tx, temp.QuarterID, key, temp.App)
	switch {
	case errors.Is(err, repo.ErrNotFound) && additions.Count() == 0:
		// everything chosen is held through another app's assignment
		return heldElsewhere(snapshot, key, requested, temp), nil
	case errors.Is(err, repo.ErrNotFound):
		now := domain.FormatTime(e.now())
		a = domain.Assignment{
			ID:             uuid.NewString(),
			QuarterID:      temp.QuarterID,
			Tribe:          temp.Tribe,
			App:            temp.App,
			ResourceName:   temp.ResourceName,
			Role:           temp.Role,
			AssignmentType: temp.AssignType,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.Repo.InsertAssignmentTx(ctx, tx, a); err != nil {
			return CommitResult{}, storageErr("create assignment", err)
		}
		if err := e.events().Append(ctx, tx, events.AssignmentCreated, a.QuarterID, "assignment", a.ID, actorTribe, events.EventPayload{
			"temp_id": temp.ID, "resource_name": a.ResourceName, "role": a.Role,
		}); err != nil {
			return CommitResult{}, storageErr("append event", err)
		}
	case err != nil:
		return CommitResult{}, storageErr("load assignment", err)
	}

	proposed := a.Slots.Or(additions)

	res, err := e.commitTx(ctx, tx, a, proposed, actorTribe)
	if err != nil {
		return CommitResult{}, err
	}
	if !res.Unchanged {
		if err := e.events().Append(ctx, tx, events.BookingConfirmed, a.QuarterID, "temp_assignment", temp.ID, actorTribe, events.EventPayload{
			"assignment_id": a.ID, "requested": requested.Sprints(),
		}); err != nil {
			return CommitResult{}, storageErr("append event", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return CommitResult{}, storageErr("commit", err)
	}
	if !res.Unchanged {
		e.publishCommit(ctx, res.Assignment)
	}
	return res, nil
}

// heldElsewhere reports an unchanged booking against the tribe's assignment
// that already holds the chosen sprints.
func heldElsewhere(snapshot []domain.Assignment, key slots.TribeKey, requested slots.Vector, temp domain.TempAssignment) CommitResult {
	res := CommitResult{Unchanged: true}
	for _, a := range snapshot {
		if a.Tribe == key.Tribe && a.Slots.And(requested).Count() > 0 {
			res.Assignment = a
			break
		}
	}
	res.Availability = availability.Compute(snapshot, key, availability.ResolvePolicy(&temp, res.Assignment.AssignmentType))
	return res
}

// Availability answers what the tribe can pick right now on a resource/role.
func (e Engine) Availability(ctx context.Context, quarterID string, key slots.TribeKey) (availability.Result, error) {
	if key.Tribe == "" || key.ResourceName == "" || key.Role == "" {
		return availability.Result{}, validationf("tribe, resource_name and role are required")
	}
	snapshot, err := e.Repo.ListSlotAssignments(ctx, quarterID, key.Slot())
	if err != nil {
		return availability.Result{}, storageErr("load snapshot", err)
	}
	temp, err := e.Repo.FindTempForTribeTx(ctx, nil, quarterID, key, "")
	if err != nil {
		return availability.Result{}, storageErr("load capacity policy", err)
	}
	e.Metrics.AvailabilityServed()
	return availability.Compute(snapshot, key, availability.ResolvePolicy(temp, tribeAssignType(snapshot, key))), nil
}

// tribeAssignType is Dedicated when any of the tribe's assignments on the
// key is recorded as Dedicated.
func tribeAssignType(snapshot []domain.Assignment, key slots.TribeKey) domain.AssignType {
	for _, a := range snapshot {
		if a.Tribe == key.Tribe && a.ResourceName == key.ResourceName && a.Role == key.Role && a.AssignmentType == domain.Dedicated {
			return domain.Dedicated
		}
	}
	return domain.Shared
}

// TempDetail is a temp hold with the live availability for its tribe.
type TempDetail struct {
	Temp          domain.TempAssignment
	Assignment    *domain.Assignment
	Availability  availability.Result
	AllowedTribes []string
}

func (e Engine) TempDetail(ctx context.Context, tempID string) (TempDetail, error) {
	temp, err := e.Repo.GetTempAssignment(ctx, tempID)
	if err != nil {
		return TempDetail{}, fmt.Errorf("temp assignment %s: %w", tempID, err)
	}
	key := temp.TribeKey()
	snapshot, err := e.Repo.ListSlotAssignments(ctx, temp.QuarterID, key.Slot())
	if err != nil {
		return TempDetail{}, storageErr("load snapshot", err)
	}
	detail := TempDetail{Temp: temp}
	assignType := temp.AssignType
	for i := range snapshot {
		a := snapshot[i]
		if a.Tribe == temp.Tribe && a.App == temp.App {
			detail.Assignment = &a
			if a.AssignmentType == domain.Dedicated {
				assignType = domain.Dedicated
			}
		}
	}
	policy := availability.PolicyFor(assignType, temp.Reserved)
	if assignType != temp.AssignType {
		policy = availability.ResolvePolicy(&temp, assignType)
	}
	detail.Availability = availability.Compute(snapshot, key, policy)

	if policy.AssignType == domain.Dedicated {
		detail.AllowedTribes = []string{temp.Tribe}
		return detail, nil
	}
	temps, err := e.Repo.ListResourceTempsTx(ctx, nil, temp.QuarterID, key.Slot())
	if err != nil {
		return TempDetail{}, storageErr("load resource holds", err)
	}
	seen := map[string]struct{}{}
	for _, t := range temps {
		if _, ok := seen[t.Tribe]; ok {
			continue
		}
		seen[t.Tribe] = struct{}{}
		detail.AllowedTribes = append(detail.AllowedTribes, t.Tribe)
	}
	sort.Strings(detail.AllowedTribes)
	return detail, nil
}

func checkActor(owner, actor string) error {
	if actor == "" {
		return validationf("acting tribe is required")
	}
	if owner != actor {
		return &ValidationError{
			Message: "acting tribe does not own this assignment",
			Details: []string{fmt.Sprintf("owner %q, actor %q", owner, actor)},
		}
	}
	return nil
}

func (e Engine) publishCommit(ctx context.Context, a domain.Assignment) {
	e.publish(ctx, notify.Change{
		Type:         events.SlotsCommitted,
		QuarterID:    a.QuarterID,
		AssignmentID: a.ID,
		Tribe:        a.Tribe,
		ResourceName: a.ResourceName,
		Role:         a.Role,
		Sprints:      a.Slots.Sprints(),
		TS:           a.UpdatedAt,
	})
}

func (e Engine) observe(op, id, tribe string, res CommitResult, err error, d time.Duration) {
	outcome := metrics.OutcomeCommitted
	switch {
	case err != nil:
		outcome = Kind(err)
		if outcome == KindInternal {
			outcome = metrics.OutcomeError
		}
	case res.Unchanged:
		outcome = metrics.OutcomeUnchanged
	}
	e.Metrics.ObserveCommit(outcome, d)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("id", id),
		zap.String("tribe", tribe),
		zap.String("outcome", outcome),
		zap.Duration("took", d),
	}
	switch {
	case err == nil:
		e.log().Info("slots", append(fields, zap.String("slots", res.Assignment.Slots.String()))...)
	case outcome == metrics.OutcomeError || outcome == metrics.OutcomeTransient:
		e.log().Error("slots", append(fields, zap.Error(err))...)
	default:
		e.log().Warn("slots", append(fields, zap.Error(err))...)
	}
}
