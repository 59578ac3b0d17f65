package domain

import (
	"strings"
	"time"

	"sprintbook/internal/slots"
)

// TimeFormat is fixed-width so stored timestamps sort lexically.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeFormat (UTC).
func FormatTime(t time.Time) string { return t.UTC().Format(TimeFormat) }

type AssignType string

const (
	Dedicated AssignType = "Dedicated"
	Shared    AssignType = "Shared"
)

// ParseAssignType is lenient: anything that is not "dedicated" is Shared.
func ParseAssignType(s string) AssignType {
	if strings.EqualFold(strings.TrimSpace(s), string(Dedicated)) {
		return Dedicated
	}
	return Shared
}

type Quarter struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsCurrent bool   `json:"is_current"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Assignment is one tribe's permanent sprint occupancy on a resource/role for an app.
type Assignment struct {
	ID             string       `json:"id"`
	QuarterID      string       `json:"quarter_id"`
	Tribe          string       `json:"tribe"`
	App            string       `json:"app"`
	ResourceName   string       `json:"resource_name"`
	Role           string       `json:"role"`
	AssignmentType AssignType   `json:"assignment_type" enum:"Dedicated,Shared"`
	Slots          slots.Vector `json:"slots"`
	Edited         bool         `json:"edited"`
	CreatedAt      string       `json:"created_at" format:"date-time"`
	UpdatedAt      string       `json:"updated_at" format:"date-time"`
}

func (a Assignment) TribeKey() slots.TribeKey {
	return slots.TribeKey{Tribe: a.Tribe, ResourceName: a.ResourceName, Role: a.Role}
}

func (a Assignment) SlotKey() slots.Key {
	return slots.Key{ResourceName: a.ResourceName, Role: a.Role}
}

// TempAssignment is a provisional entitlement: a tribe may book up to Reserved
// sprints (0 = uncapped) on a resource/role.
type TempAssignment struct {
	ID           string     `json:"id"`
	QuarterID    string     `json:"quarter_id"`
	Tribe        string     `json:"tribe"`
	App          string     `json:"app"`
	ResourceName string     `json:"resource_name"`
	Role         string     `json:"role"`
	AssignType   AssignType `json:"assign_type" enum:"Dedicated,Shared"`
	Reserved     int        `json:"reserved"`
}

func (t TempAssignment) TribeKey() slots.TribeKey {
	return slots.TribeKey{Tribe: t.Tribe, ResourceName: t.ResourceName, Role: t.Role}
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	QuarterID  string `json:"quarter_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Tribe      string `json:"tribe"`
	Payload    string `json:"payload_json"`
}
