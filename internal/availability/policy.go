package availability

import (
	"sprintbook/internal/domain"
	"sprintbook/internal/slots"
)

// Policy is the capacity rule for one tribe on one resource/role.
type Policy struct {
	AssignType  domain.AssignType `json:"assign_type"`
	CapPerTribe int               `json:"cap_per_tribe"`
}

// PolicyFor resolves the cap: Dedicated holds every sprint, Shared holds
// reserved sprints, and a reserved value of 0 means uncapped.
func PolicyFor(assignType domain.AssignType, reserved int) Policy {
	p := Policy{AssignType: assignType, CapPerTribe: slots.Count}
	if assignType == domain.Dedicated {
		return p
	}
	p.AssignType = domain.Shared
	if reserved > 0 && reserved < slots.Count {
		p.CapPerTribe = reserved
	}
	return p
}

// ResolvePolicy derives the policy from the tribe's temp row when one exists.
// An assignment recorded as Dedicated keeps the full cap even when the temp
// row says otherwise.
func ResolvePolicy(temp *domain.TempAssignment, assignmentType domain.AssignType) Policy {
	if temp == nil {
		return PolicyFor(assignmentType, 0)
	}
	if assignmentType == domain.Dedicated {
		return PolicyFor(domain.Dedicated, temp.Reserved)
	}
	return PolicyFor(temp.AssignType, temp.Reserved)
}
