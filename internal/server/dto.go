package server

import (
	"sprintbook/internal/availability"
	"sprintbook/internal/domain"
	"sprintbook/internal/engine"
	"sprintbook/internal/provision"
	"sprintbook/internal/slots"
)

// Request payloads

// UpdateSlotsRequest is a partial slot edit; omitted sprints keep their
// stored value.
type UpdateSlotsRequest struct {
	S1 *bool `json:"s1,omitempty"`
	S2 *bool `json:"s2,omitempty"`
	S3 *bool `json:"s3,omitempty"`
	S4 *bool `json:"s4,omitempty"`
	S5 *bool `json:"s5,omitempty"`
	S6 *bool `json:"s6,omitempty"`
}

// Apply overlays the request on the stored vector.
func (r UpdateSlotsRequest) Apply(v slots.Vector) slots.Vector {
	for i, p := range []*bool{r.S1, r.S2, r.S3, r.S4, r.S5, r.S6} {
		if p != nil {
			v[i] = *p
		}
	}
	return v
}

type BookTempRequest struct {
	Sprints []int `json:"sprints" doc:"1-based sprint ordinals to book"`
}

type SetQuarterRequest struct {
	Name string `json:"name" minLength:"1"`
}

type ProvisionRequest struct {
	Rows    []provision.Row `json:"rows"`
	Replace bool            `json:"replace,omitempty"`
}

// Response payloads

type AssignmentResponse struct {
	ID             string `json:"id"`
	QuarterID      string `json:"quarter_id"`
	Tribe          string `json:"tribe"`
	App            string `json:"app"`
	ResourceName   string `json:"resource_name"`
	Role           string `json:"role"`
	AssignmentType string `json:"assignment_type"`
	S1             bool   `json:"s1"`
	S2             bool   `json:"s2"`
	S3             bool   `json:"s3"`
	S4             bool   `json:"s4"`
	S5             bool   `json:"s5"`
	S6             bool   `json:"s6"`
	Edited         bool   `json:"edited"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type AssignmentList struct {
	Items []AssignmentResponse `json:"items"`
}

type CommitResponse struct {
	Assignment AssignmentResponse `json:"assignment"`
	Unchanged  bool               `json:"unchanged"`
}

type BookTempResponse struct {
	OK         bool               `json:"ok"`
	Assignment AssignmentResponse `json:"assignment"`
	Unchanged  bool               `json:"unchanged"`
	Redirect   string             `json:"redirect"`
}

// AvailabilityResponse uses 0/1 flags per sprint, index 0 is sprint 1.
type AvailabilityResponse struct {
	Tribe         string     `json:"tribe"`
	ResourceName  string     `json:"resource_name"`
	Role          string     `json:"role"`
	AssignType    string     `json:"assign_type"`
	Blocked       []int      `json:"blocked"`
	Mine          []int      `json:"mine"`
	CapPerTribe   int        `json:"cap_per_tribe"`
	BookedByTribe int        `json:"booked_by_tribe"`
	Remaining     int        `json:"remaining"`
	TakenBy       [][]string `json:"taken_by"`
}

type TempResponse struct {
	ID              string `json:"id"`
	QuarterID       string `json:"quarter_id"`
	Tribe           string `json:"tribe"`
	App             string `json:"app"`
	ResourceName    string `json:"resource_name"`
	Role            string `json:"role"`
	AssignType      string `json:"assign_type"`
	Reserved        int    `json:"reserved"`
	ReservedSprints int    `json:"reserved_sprints"`
}

type TempList struct {
	Items []TempResponse `json:"items"`
}

type SprintView struct {
	Index   int      `json:"index"`
	Blocked bool     `json:"blocked"`
	Mine    bool     `json:"mine"`
	TakenBy []string `json:"taken_by"`
	CanBook bool     `json:"can_book"`
}

type TempDetailResponse struct {
	Temp          TempResponse         `json:"temp"`
	Assignment    *AssignmentResponse  `json:"assignment,omitempty"`
	AllowedTribes []string             `json:"allowed_tribes"`
	Sprints       []SprintView         `json:"sprints"`
	Availability  AvailabilityResponse `json:"availability"`
}

type QuarterList struct {
	Items   []domain.Quarter `json:"items"`
	Current string           `json:"current,omitempty"`
}

type ProvisionResponse struct {
	Validation provision.Validation `json:"validation"`
	Imported   int                  `json:"imported"`
	Cleared    int64                `json:"cleared"`
	Archived   string               `json:"archived,omitempty"`
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:             a.ID,
		QuarterID:      a.QuarterID,
		Tribe:          a.Tribe,
		App:            a.App,
		ResourceName:   a.ResourceName,
		Role:           a.Role,
		AssignmentType: string(a.AssignmentType),
		S1:             a.Slots[0],
		S2:             a.Slots[1],
		S3:             a.Slots[2],
		S4:             a.Slots[3],
		S5:             a.Slots[4],
		S6:             a.Slots[5],
		Edited:         a.Edited,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func mapAssignments(items []domain.Assignment) []AssignmentResponse {
	out := make([]AssignmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, assignmentResponse(a))
	}
	return out
}

func availabilityResponse(r availability.Result) AvailabilityResponse {
	takenBy := make([][]string, slots.Count)
	for i, tribes := range r.TakenBy {
		takenBy[i] = append([]string{}, tribes...)
	}
	return AvailabilityResponse{
		Tribe:         r.Key.Tribe,
		ResourceName:  r.Key.ResourceName,
		Role:          r.Key.Role,
		AssignType:    string(r.AssignType),
		Blocked:       r.Blocked.Ints(),
		Mine:          r.Mine.Ints(),
		CapPerTribe:   r.CapPerTribe,
		BookedByTribe: r.BookedByTribe,
		Remaining:     r.Remaining(),
		TakenBy:       takenBy,
	}
}

func tempResponse(t domain.TempAssignment) TempResponse {
	return TempResponse{
		ID:              t.ID,
		QuarterID:       t.QuarterID,
		Tribe:           t.Tribe,
		App:             t.App,
		ResourceName:    t.ResourceName,
		Role:            t.Role,
		AssignType:      string(t.AssignType),
		Reserved:        t.Reserved,
		ReservedSprints: t.Reserved,
	}
}

func mapTemps(items []domain.TempAssignment) []TempResponse {
	out := make([]TempResponse, 0, len(items))
	for _, t := range items {
		out = append(out, tempResponse(t))
	}
	return out
}

func tempDetailResponse(d engine.TempDetail) TempDetailResponse {
	resp := TempDetailResponse{
		Temp:          tempResponse(d.Temp),
		AllowedTribes: append([]string{}, d.AllowedTribes...),
		Availability:  availabilityResponse(d.Availability),
	}
	if d.Assignment != nil {
		a := assignmentResponse(*d.Assignment)
		resp.Assignment = &a
	}
	for i := 1; i <= slots.Count; i++ {
		blocked := d.Availability.Blocked.Has(i)
		mine := d.Availability.Mine.Has(i)
		resp.Sprints = append(resp.Sprints, SprintView{
			Index:   i,
			Blocked: blocked,
			Mine:    mine,
			TakenBy: append([]string{}, d.Availability.TakenBy[i-1]...),
			// held sprints stay fixed; free ones only while the cap has room
			CanBook: !blocked && !mine && d.Availability.Remaining() > 0,
		})
	}
	return resp
}
