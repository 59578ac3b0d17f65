package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintbook/internal/domain"
	"sprintbook/internal/slots"
)

func vec(t *testing.T, sprints ...int) slots.Vector {
	t.Helper()
	v, err := slots.FromSprints(sprints)
	require.NoError(t, err)
	return v
}

func assignment(id, tribe, resource, role string, v slots.Vector) domain.Assignment {
	return domain.Assignment{ID: id, Tribe: tribe, ResourceName: resource, Role: role, Slots: v, AssignmentType: domain.Shared}
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, 6, PolicyFor(domain.Dedicated, 2).CapPerTribe)
	assert.Equal(t, 2, PolicyFor(domain.Shared, 2).CapPerTribe)
	assert.Equal(t, 6, PolicyFor(domain.Shared, 0).CapPerTribe)
	assert.Equal(t, 6, PolicyFor(domain.Shared, 9).CapPerTribe)
}

func TestResolvePolicy(t *testing.T) {
	assert.Equal(t, Policy{AssignType: domain.Shared, CapPerTribe: 6}, ResolvePolicy(nil, domain.Shared))

	temp := &domain.TempAssignment{AssignType: domain.Shared, Reserved: 2}
	assert.Equal(t, 2, ResolvePolicy(temp, domain.Shared).CapPerTribe)

	// the assignment's own type wins when it is Dedicated
	p := ResolvePolicy(temp, domain.Dedicated)
	assert.Equal(t, domain.Dedicated, p.AssignType)
	assert.Equal(t, 6, p.CapPerTribe)

	temp.AssignType = domain.Dedicated
	assert.Equal(t, 6, ResolvePolicy(temp, domain.Shared).CapPerTribe)
}

func TestComputeEmptySnapshot(t *testing.T) {
	key := slots.TribeKey{Tribe: "A", ResourceName: "R1", Role: "Dev"}
	res := Compute(nil, key, PolicyFor(domain.Shared, 0))
	assert.Equal(t, slots.Vector{}, res.Blocked)
	assert.Equal(t, slots.Vector{}, res.Mine)
	assert.Equal(t, 6, res.CapPerTribe)
	assert.Equal(t, 0, res.BookedByTribe)
	assert.Equal(t, 6, res.Remaining())
}

func TestComputeBlockedAndMine(t *testing.T) {
	snapshot := []domain.Assignment{
		assignment("1", "A", "R1", "Dev", vec(t, 1, 2)),
		assignment("2", "B", "R1", "Dev", vec(t, 3)),
		assignment("3", "C", "R1", "QA", vec(t, 4)),
		assignment("4", "B", "R2", "Dev", vec(t, 5)),
	}
	key := slots.TribeKey{Tribe: "A", ResourceName: "R1", Role: "Dev"}
	res := Compute(snapshot, key, PolicyFor(domain.Shared, 2))

	assert.Equal(t, vec(t, 3), res.Blocked)
	assert.Equal(t, vec(t, 1, 2), res.Mine)
	assert.Equal(t, 2, res.BookedByTribe)
	assert.Equal(t, 0, res.Remaining())
	assert.Equal(t, []string{"A"}, res.TakenBy[0])
	assert.Equal(t, []string{"B"}, res.TakenBy[2])
	assert.Empty(t, res.TakenBy[3])

	// blocked and mine never overlap for a consistent snapshot
	for i := 0; i < slots.Count; i++ {
		assert.False(t, res.Blocked[i] && res.Mine[i])
	}
}

func TestComputeDeterministic(t *testing.T) {
	a := assignment("1", "B", "R1", "Dev", vec(t, 2))
	b := assignment("2", "C", "R1", "Dev", vec(t, 2, 4))
	c := assignment("3", "A", "R1", "Dev", vec(t, 6))
	key := slots.TribeKey{Tribe: "A", ResourceName: "R1", Role: "Dev"}
	p := PolicyFor(domain.Shared, 3)

	first := Compute([]domain.Assignment{a, b, c}, key, p)
	second := Compute([]domain.Assignment{c, b, a}, key, p)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"B", "C"}, first.TakenBy[1])
}

func TestComputeExcluding(t *testing.T) {
	snapshot := []domain.Assignment{
		assignment("1", "A", "R1", "Dev", vec(t, 1, 2)),
		assignment("2", "A", "R1", "Dev", vec(t, 5)),
	}
	key := slots.TribeKey{Tribe: "A", ResourceName: "R1", Role: "Dev"}
	res := ComputeExcluding(snapshot, key, PolicyFor(domain.Shared, 0), "1")
	assert.Equal(t, vec(t, 5), res.Mine)
	assert.Equal(t, 1, res.BookedByTribe)
}

func TestEvaluate(t *testing.T) {
	snapshot := []domain.Assignment{
		assignment("1", "A", "R1", "Dev", vec(t, 1, 2)),
		assignment("2", "B", "R1", "Dev", vec(t, 3)),
	}
	key := slots.TribeKey{Tribe: "A", ResourceName: "R1", Role: "Dev"}

	res := ComputeExcluding(snapshot, key, PolicyFor(domain.Shared, 2), "1")
	v := Evaluate(res, vec(t, 3))
	assert.Equal(t, []int{3}, v.Conflicts)
	assert.False(t, v.OK())

	v = Evaluate(res, vec(t, 1, 2, 4))
	assert.Empty(t, v.Conflicts)
	assert.True(t, v.CapExceeded())
	assert.Equal(t, 3, v.TotalAfter)
	assert.Equal(t, 2, v.Cap)

	v = Evaluate(res, vec(t, 1, 4))
	assert.True(t, v.OK())

	// dedicated holders are only stopped by conflicts
	res = ComputeExcluding(snapshot, key, PolicyFor(domain.Dedicated, 2), "1")
	v = Evaluate(res, vec(t, 1, 2, 4, 5, 6))
	assert.True(t, v.OK())
}
