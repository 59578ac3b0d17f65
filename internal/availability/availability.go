// Package availability computes which sprints a tribe may pick on a
// resource/role. It is pure: the same snapshot always yields the same result,
// which is what lets a client preview a booking and the server enforce it with
// identical answers.
package availability

import (
	"sort"

	"sprintbook/internal/domain"
	"sprintbook/internal/slots"
)

// Result is the availability view for one tribe on one resource/role.
type Result struct {
	Key           slots.TribeKey
	Blocked       slots.Vector
	Mine          slots.Vector
	CapPerTribe   int
	BookedByTribe int
	AssignType    domain.AssignType
	TakenBy       [slots.Count][]string
}

// Remaining is how many more sprints the tribe may take.
func (r Result) Remaining() int {
	if n := r.CapPerTribe - r.BookedByTribe; n > 0 {
		return n
	}
	return 0
}

// Compute evaluates the snapshot for key under policy. Assignments for other
// resource/role pairs are ignored.
func Compute(assignments []domain.Assignment, key slots.TribeKey, policy Policy) Result {
	return ComputeExcluding(assignments, key, policy, "")
}

// ComputeExcluding is Compute with one assignment left out of the snapshot.
func ComputeExcluding(assignments []domain.Assignment, key slots.TribeKey, policy Policy, excludeID string) Result {
	res := Result{
		Key:         key,
		CapPerTribe: policy.CapPerTribe,
		AssignType:  policy.AssignType,
	}
	holders := [slots.Count]map[string]struct{}{}
	for _, a := range assignments {
		if a.ResourceName != key.ResourceName || a.Role != key.Role {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		for i, on := range a.Slots {
			if !on {
				continue
			}
			if holders[i] == nil {
				holders[i] = map[string]struct{}{}
			}
			holders[i][a.Tribe] = struct{}{}
			if a.Tribe == key.Tribe {
				res.Mine[i] = true
			} else {
				res.Blocked[i] = true
			}
		}
	}
	for i := range holders {
		names := make([]string, 0, len(holders[i]))
		for name := range holders[i] {
			names = append(names, name)
		}
		sort.Strings(names)
		res.TakenBy[i] = names
	}
	res.BookedByTribe = res.Mine.Count()
	return res
}

// Verdict is the outcome of checking a proposed vector against a Result
// computed without the target assignment.
type Verdict struct {
	Conflicts  []int
	TotalAfter int
	Cap        int
}

func (v Verdict) CapExceeded() bool { return v.TotalAfter > v.Cap }

func (v Verdict) OK() bool { return len(v.Conflicts) == 0 && !v.CapExceeded() }

// Evaluate applies the booking rules: a proposed sprint held by another tribe
// conflicts, and the tribe's total after the change must fit the cap.
func Evaluate(r Result, proposed slots.Vector) Verdict {
	v := Verdict{Conflicts: []int{}, Cap: r.CapPerTribe}
	for i, on := range proposed {
		if on && r.Blocked[i] {
			v.Conflicts = append(v.Conflicts, i+1)
		}
	}
	v.TotalAfter = r.BookedByTribe + proposed.Count()
	return v
}
