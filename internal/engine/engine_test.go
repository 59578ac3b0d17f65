package engine_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintbook/internal/archive"
	"sprintbook/internal/config"
	"sprintbook/internal/db"
	"sprintbook/internal/domain"
	"sprintbook/internal/engine"
	"sprintbook/internal/events"
	"sprintbook/internal/migrate"
	"sprintbook/internal/notify"
	"sprintbook/internal/provision"
	"sprintbook/internal/repo"
	"sprintbook/internal/slots"
)

const seededAt = "2024-12-01T00:00:00.000000Z"

var fixedNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []notify.Change
}

func (p *recordingPublisher) Publish(_ context.Context, c notify.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) all() []notify.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Change(nil), p.changes...)
}

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Quarter   domain.Quarter
	Publisher *recordingPublisher
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))

	eng := engine.New(conn, dialect, config.Default())
	eng.Now = func() time.Time { return fixedNow }
	pub := &recordingPublisher{}
	eng.Notifier = pub
	ctx := context.Background()
	q, err := eng.SetCurrentQuarter(ctx, "2025-Q1")
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx, Quarter: q, Publisher: pub}
}

func vec(t *testing.T, sprints ...int) slots.Vector {
	t.Helper()
	v, err := slots.FromSprints(sprints)
	require.NoError(t, err)
	return v
}

func (env testEnv) seedAssignment(t *testing.T, tribe, app, resource, role string, typ domain.AssignType, sprints ...int) domain.Assignment {
	t.Helper()
	a := domain.Assignment{
		ID:             uuid.NewString(),
		QuarterID:      env.Quarter.ID,
		Tribe:          tribe,
		App:            app,
		ResourceName:   resource,
		Role:           role,
		AssignmentType: typ,
		Slots:          vec(t, sprints...),
		CreatedAt:      seededAt,
		UpdatedAt:      seededAt,
	}
	r := env.Engine.Repo
	tx, err := r.BeginTx(env.Ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, r.InsertAssignmentTx(env.Ctx, tx, a))
	snapshot, err := r.ListSlotAssignmentsTx(env.Ctx, tx, env.Quarter.ID, a.SlotKey())
	require.NoError(t, err)
	require.NoError(t, r.RebuildSlotClaimsTx(env.Ctx, tx, env.Quarter.ID, a.SlotKey(), snapshot))
	require.NoError(t, tx.Commit())
	return a
}

func (env testEnv) seedTemps(t *testing.T, rows ...provision.Row) {
	t.Helper()
	_, err := env.Engine.ImportTempAssignments(env.Ctx, env.Quarter.ID, rows, false)
	require.NoError(t, err)
}

func (env testEnv) tempFor(t *testing.T, tribe, resource string) domain.TempAssignment {
	t.Helper()
	temps, err := env.Engine.Repo.ListTempAssignments(env.Ctx, repo.TempFilters{QuarterID: env.Quarter.ID, Tribe: tribe, Resource: resource})
	require.NoError(t, err)
	require.Len(t, temps, 1)
	return temps[0]
}

// sharedR1 gives tribe A a cap of 2 and tribe B a cap of 3 on R1/Dev.
func (env testEnv) sharedR1(t *testing.T) {
	env.seedTemps(t,
		provision.Row{Tribe: "A", App: "Checkout", Role: "Dev", Reserved: 2, Resource: "R1"},
		provision.Row{Tribe: "B", App: "Wallet", Role: "Dev", Reserved: 3, Resource: "R1"},
	)
}

func TestCommitSlotsCommits(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared, 1)

	res, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1, 2), "A")
	require.NoError(t, err)
	assert.False(t, res.Unchanged)
	assert.Equal(t, vec(t, 1, 2), res.Assignment.Slots)
	assert.True(t, res.Assignment.Edited)
	assert.Equal(t, domain.FormatTime(fixedNow), res.Assignment.UpdatedAt)
	assert.Equal(t, 2, res.Availability.BookedByTribe)
	assert.Equal(t, 0, res.Availability.Remaining())

	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Assignment, stored)

	claims, err := env.Engine.Repo.ListSlotClaims(env.Ctx, env.Quarter.ID, a.SlotKey())
	require.NoError(t, err)
	assert.Equal(t, []repo.SlotClaim{{Sprint: 1, Tribe: "A"}, {Sprint: 2, Tribe: "A"}}, claims)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, events.SlotsCommitted, a.ID)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "A", evts[0].Tribe)

	changes := env.Publisher.all()
	require.Len(t, changes, 1)
	assert.Equal(t, a.ID, changes[0].AssignmentID)
	assert.Equal(t, []int{1, 2}, changes[0].Sprints)
}

func TestCommitSlotsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CommitSlots(env.Ctx, "missing", vec(t, 1), "A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	assert.Equal(t, engine.KindNotFound, engine.Kind(err))
}

func TestCommitSlotsRejectsOtherTribe(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared)
	_, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1), "B")
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, env.Publisher.all())
}

func TestCommitSlotsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared)
	env.seedAssignment(t, "B", "Wallet", "R1", "Dev", domain.Shared, 3)

	_, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 3), "A")
	var conflict *engine.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{3}, conflict.Sprints)
	assert.Equal(t, engine.KindSlotConflict, engine.Kind(err))

	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, slots.Vector{}, stored.Slots)
	assert.False(t, stored.Edited)
	assert.Empty(t, env.Publisher.all())
}

func TestCommitSlotsConflictCheckedBeforeCap(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared)
	env.seedAssignment(t, "B", "Wallet", "R1", "Dev", domain.Shared, 3)

	_, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1, 2, 3, 4), "A")
	var conflict *engine.SlotConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestCommitSlotsCapExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared, 1)

	_, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1, 2, 4), "A")
	var capErr *engine.CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Cap)
	assert.Equal(t, 3, capErr.Requested)
	assert.Equal(t, "you've exceeded max allowed number of sprints (2).", capErr.Error())
}

func TestCommitSlotsCapCountsOtherAssignmentsOfTribe(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	env.seedAssignment(t, "A", "Legacy", "R1", "Dev", domain.Shared, 5)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared)

	_, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1), "A")
	require.NoError(t, err)
	_, err = env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1, 2), "A")
	var capErr *engine.CapExceededError
	require.ErrorAs(t, err, &capErr)
}

func TestCommitSlotsDedicatedTakesAllSprints(t *testing.T) {
	env := newTestEnv(t)
	env.seedTemps(t, provision.Row{Tribe: "C", App: "Ledger", Role: "Dev", Reserved: 6, Resource: "R2"})
	assert.Equal(t, domain.Dedicated, env.tempFor(t, "C", "R2").AssignType)
	a := env.seedAssignment(t, "C", "Ledger", "R2", "Dev", domain.Dedicated)

	res, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1, 2, 3, 4, 5, 6), "C")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Availability.CapPerTribe)
	assert.Equal(t, domain.Dedicated, res.Availability.AssignType)
}

func TestCommitSlotsUnchangedIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared, 1, 2)

	res, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1, 2), "A")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)

	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, seededAt, stored.UpdatedAt)
	assert.False(t, stored.Edited)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, events.SlotsCommitted, "")
	require.NoError(t, err)
	assert.Empty(t, evts)
	assert.Empty(t, env.Publisher.all())
}

func TestCommitSlotsWithoutTempIsUncapped(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAssignment(t, "A", "Checkout", "R9", "Dev", domain.Shared)
	res, err := env.Engine.CommitSlots(env.Ctx, a.ID, vec(t, 1, 2, 3, 4, 5, 6), "A")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Availability.CapPerTribe)
}

func TestConcurrentCommitsHaveOneWinner(t *testing.T) {
	env := newTestEnv(t)
	env.seedTemps(t,
		provision.Row{Tribe: "A", App: "Checkout", Role: "Dev", Reserved: 3, Resource: "R1"},
		provision.Row{Tribe: "B", App: "Wallet", Role: "Dev", Reserved: 3, Resource: "R1"},
	)
	a := env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared)
	b := env.seedAssignment(t, "B", "Wallet", "R1", "Dev", domain.Shared)

	type outcome struct {
		tribe string
		err   error
	}
	four := vec(t, 4)
	results := make(chan outcome, 2)
	var start, done sync.WaitGroup
	start.Add(1)
	for _, c := range []struct{ id, tribe string }{{a.ID, "A"}, {b.ID, "B"}} {
		done.Add(1)
		go func(id, tribe string) {
			defer done.Done()
			start.Wait()
			_, err := env.Engine.CommitSlots(env.Ctx, id, four, tribe)
			results <- outcome{tribe: tribe, err: err}
		}(c.id, c.tribe)
	}
	start.Done()
	done.Wait()
	close(results)

	var winners, conflicts int
	var winner string
	for r := range results {
		var conflict *engine.SlotConflictError
		switch {
		case r.err == nil:
			winners++
			winner = r.tribe
		case errors.As(r.err, &conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", r.err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, conflicts)

	claims, err := env.Engine.Repo.ListSlotClaims(env.Ctx, env.Quarter.ID, slots.Key{ResourceName: "R1", Role: "Dev"})
	require.NoError(t, err)
	assert.Equal(t, []repo.SlotClaim{{Sprint: 4, Tribe: winner}}, claims)
}

func TestConfirmBookingValidation(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	temp := env.tempFor(t, "A", "R1")

	var verr *engine.ValidationError
	_, err := env.Engine.ConfirmBooking(env.Ctx, temp.ID, nil, "A")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pick at least one sprint", verr.Message)

	_, err = env.Engine.ConfirmBooking(env.Ctx, temp.ID, []int{7}, "A")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid sprint index", verr.Message)

	_, err = env.Engine.ConfirmBooking(env.Ctx, temp.ID, []int{1}, "B")
	require.ErrorAs(t, err, &verr)

	_, err = env.Engine.ConfirmBooking(env.Ctx, "missing", []int{1}, "A")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestConfirmBookingFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedTemps(t,
		provision.Row{Tribe: "A", App: "Checkout", Role: "Dev", Reserved: 3, Resource: "R1"},
		provision.Row{Tribe: "B", App: "Wallet", Role: "Dev", Reserved: 3, Resource: "R1"},
	)
	tempA := env.tempFor(t, "A", "R1")
	tempB := env.tempFor(t, "B", "R1")

	// first booking materializes the assignment
	res, err := env.Engine.ConfirmBooking(env.Ctx, tempA.ID, []int{1, 2}, "A")
	require.NoError(t, err)
	assert.Equal(t, vec(t, 1, 2), res.Assignment.Slots)
	assert.Equal(t, "Checkout", res.Assignment.App)
	assert.Equal(t, domain.Shared, res.Assignment.AssignmentType)
	assert.True(t, res.Assignment.Edited)
	firstID := res.Assignment.ID

	// held sprints are dropped, new ones are added
	res, err = env.Engine.ConfirmBooking(env.Ctx, tempA.ID, []int{2, 3}, "A")
	require.NoError(t, err)
	assert.Equal(t, firstID, res.Assignment.ID)
	assert.Equal(t, vec(t, 1, 2, 3), res.Assignment.Slots)

	// only held sprints: nothing to do
	res, err = env.Engine.ConfirmBooking(env.Ctx, tempA.ID, []int{1}, "A")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)

	_, err = env.Engine.ConfirmBooking(env.Ctx, tempA.ID, []int{4}, "A")
	var capErr *engine.CapExceededError
	require.ErrorAs(t, err, &capErr)

	_, err = env.Engine.ConfirmBooking(env.Ctx, tempB.ID, []int{3, 4}, "B")
	var conflict *engine.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{3}, conflict.Sprints)

	// the rejected booking left no assignment behind for B
	_, err = env.Engine.Repo.FindAssignmentTx(env.Ctx, nil, env.Quarter.ID, tempB.TribeKey(), "Wallet")
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, events.BookingConfirmed, tempA.ID)
	require.NoError(t, err)
	assert.Len(t, evts, 2)
	assert.Len(t, env.Publisher.all(), 2)
}

func TestAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	env.seedAssignment(t, "A", "Checkout", "R1", "Dev", domain.Shared, 1)
	env.seedAssignment(t, "B", "Wallet", "R1", "Dev", domain.Shared, 3)

	res, err := env.Engine.Availability(env.Ctx, env.Quarter.ID, slots.TribeKey{Tribe: "A", ResourceName: "R1", Role: "Dev"})
	require.NoError(t, err)
	assert.Equal(t, vec(t, 3), res.Blocked)
	assert.Equal(t, vec(t, 1), res.Mine)
	assert.Equal(t, 2, res.CapPerTribe)
	assert.Equal(t, 1, res.BookedByTribe)
	assert.Equal(t, domain.Shared, res.AssignType)

	empty, err := env.Engine.Availability(env.Ctx, env.Quarter.ID, slots.TribeKey{Tribe: "Z", ResourceName: "Nobody", Role: "Dev"})
	require.NoError(t, err)
	assert.Equal(t, slots.Vector{}, empty.Blocked)
	assert.Equal(t, slots.Vector{}, empty.Mine)
	assert.Equal(t, 6, empty.CapPerTribe)
	assert.Equal(t, 0, empty.BookedByTribe)

	_, err = env.Engine.Availability(env.Ctx, env.Quarter.ID, slots.TribeKey{Tribe: "A"})
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTempDetail(t *testing.T) {
	env := newTestEnv(t)
	env.sharedR1(t)
	env.seedAssignment(t, "B", "Wallet", "R1", "Dev", domain.Shared, 3)
	temp := env.tempFor(t, "A", "R1")

	detail, err := env.Engine.TempDetail(env.Ctx, temp.ID)
	require.NoError(t, err)
	assert.Equal(t, temp, detail.Temp)
	assert.Nil(t, detail.Assignment)
	assert.Equal(t, []string{"A", "B"}, detail.AllowedTribes)
	assert.Equal(t, []string{"B"}, detail.Availability.TakenBy[2])
	assert.Equal(t, 2, detail.Availability.CapPerTribe)
}

func TestImportTempAssignments(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	env.Engine.Archive = archive.FS{Dir: dir}

	_, err := env.Engine.ImportTempAssignments(env.Ctx, env.Quarter.ID, []provision.Row{
		{Line: 2, Tribe: "A", App: "x", Role: "Dev", Reserved: 4, Resource: "R3"},
		{Line: 3, Tribe: "B", App: "y", Role: "Dev", Reserved: 3, Resource: "R3"},
	}, false)
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Details, 1)
	assert.Contains(t, verr.Details[0], "R3")

	env.sharedR1(t)
	res, err := env.Engine.ImportTempAssignments(env.Ctx, env.Quarter.ID, []provision.Row{
		{Tribe: "C", App: "Ledger", Role: "dev", Reserved: 6, Resource: "r2"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, int64(2), res.Cleared)
	require.NotEmpty(t, res.Archived)
	data, err := os.ReadFile(res.Archived)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Checkout")

	temps, err := env.Engine.Repo.ListTempAssignments(env.Ctx, repo.TempFilters{QuarterID: env.Quarter.ID})
	require.NoError(t, err)
	require.Len(t, temps, 1)
	assert.Equal(t, "R2", temps[0].ResourceName)
	assert.Equal(t, domain.Dedicated, temps[0].AssignType)
}

func TestQuarters(t *testing.T) {
	env := newTestEnv(t)
	q2, err := env.Engine.SetCurrentQuarter(env.Ctx, "2025-Q2")
	require.NoError(t, err)
	cur, err := env.Engine.CurrentQuarter(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, q2.ID, cur.ID)

	again, err := env.Engine.SetCurrentQuarter(env.Ctx, "2025-Q1")
	require.NoError(t, err)
	assert.Equal(t, env.Quarter.ID, again.ID)

	all, err := env.Engine.Repo.ListQuarters(env.Ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	current := 0
	for _, q := range all {
		if q.IsCurrent {
			current++
		}
	}
	assert.Equal(t, 1, current)

	_, err = env.Engine.SetCurrentQuarter(env.Ctx, "  ")
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestExportRows(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ExportRows(env.Ctx, repo.AssignmentFilters{QuarterID: env.Quarter.ID})
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "nothing to export", verr.Message)

	env.seedAssignment(t, "Payments", "Checkout", "Alice", "Dev", domain.Shared, 1)
	env.seedAssignment(t, "Cards", "Wallet", "Bob", "QA", domain.Shared, 2)
	rows, err := env.Engine.ExportRows(env.Ctx, repo.AssignmentFilters{QuarterID: env.Quarter.ID, Tribe: "pay"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Payments", rows[0].Tribe)
}

func TestArchiveQuarter(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ArchiveQuarter(env.Ctx, env.Quarter.ID)
	require.Error(t, err)

	env.Engine.Archive = archive.FS{Dir: t.TempDir()}
	env.seedAssignment(t, "Payments", "Checkout", "Alice", "Dev", domain.Shared, 1)
	loc, err := env.Engine.ArchiveQuarter(env.Ctx, env.Quarter.ID)
	require.NoError(t, err)
	assert.Contains(t, loc, "2025-Q1")
	assert.FileExists(t, loc)
}

func TestCommitSlotsPatchKeepsConcurrentEdits(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAssignment(t, "A", "Checkout", "R9", "Dev", domain.Shared)

	errs := make(chan error, slots.Count)
	var start, done sync.WaitGroup
	start.Add(1)
	for i := 1; i <= slots.Count; i++ {
		done.Add(1)
		go func(sprint int) {
			defer done.Done()
			start.Wait()
			_, err := env.Engine.CommitSlotsPatch(env.Ctx, a.ID, func(stored slots.Vector) slots.Vector {
				stored.Set(sprint, true)
				return stored
			}, "A")
			errs <- err
		}(i)
	}
	start.Done()
	done.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, vec(t, 1, 2, 3, 4, 5, 6), got.Slots)
}

func TestConfirmBookingHeldThroughOtherApp(t *testing.T) {
	env := newTestEnv(t)
	env.seedTemps(t,
		provision.Row{Tribe: "A", App: "Checkout", Role: "Dev", Reserved: 2, Resource: "R1"},
		provision.Row{Tribe: "A", App: "Payments", Role: "Dev", Reserved: 2, Resource: "R1"},
	)
	tempFor := func(app string) domain.TempAssignment {
		temps, err := env.Engine.Repo.ListTempAssignments(env.Ctx, repo.TempFilters{QuarterID: env.Quarter.ID, App: app})
		require.NoError(t, err)
		require.Len(t, temps, 1)
		return temps[0]
	}
	checkout, payments := tempFor("Checkout"), tempFor("Payments")

	first, err := env.Engine.ConfirmBooking(env.Ctx, checkout.ID, []int{1}, "A")
	require.NoError(t, err)

	res, err := env.Engine.ConfirmBooking(env.Ctx, payments.ID, []int{1}, "A")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, first.Assignment.ID, res.Assignment.ID)
	assert.Equal(t, vec(t, 1), res.Availability.Mine)

	_, err = env.Engine.Repo.FindAssignmentTx(env.Ctx, nil, env.Quarter.ID, payments.TribeKey(), "Payments")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	items, err := env.Engine.Repo.ListAssignments(env.Ctx, repo.AssignmentFilters{QuarterID: env.Quarter.ID, Tribe: "A"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestListAssignmentsFiltersAreLiteral(t *testing.T) {
	env := newTestEnv(t)
	env.seedAssignment(t, "A", "pay_app", "R1", "Dev", domain.Shared)
	env.seedAssignment(t, "B", "payXapp", "R2", "Dev", domain.Shared)
	env.seedAssignment(t, "C", "100%", "R3", "Dev", domain.Shared)

	items, err := env.Engine.Repo.ListAssignments(env.Ctx, repo.AssignmentFilters{QuarterID: env.Quarter.ID, App: "Y_A"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pay_app", items[0].App)

	items, err = env.Engine.Repo.ListAssignments(env.Ctx, repo.AssignmentFilters{QuarterID: env.Quarter.ID, App: "%"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "100%", items[0].App)

	temps, err := env.Engine.Repo.ListTempAssignments(env.Ctx, repo.TempFilters{QuarterID: env.Quarter.ID, App: "_"})
	require.NoError(t, err)
	assert.Empty(t, temps)
}
