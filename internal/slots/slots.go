// Package slots holds the six-sprint occupancy vector and the composite keys
// used to address a resource/role pair.
package slots

import (
	"fmt"
	"strings"
)

// Count is the number of sprints in a quarter.
const Count = 6

// Vector is sprint occupancy; index 0 is sprint 1.
type Vector [Count]bool

// ValidSprint reports whether i is a 1-based sprint ordinal.
func ValidSprint(i int) bool { return i >= 1 && i <= Count }

// FromSprints builds a vector from 1-based sprint ordinals.
func FromSprints(sprints []int) (Vector, error) {
	var v Vector
	for _, s := range sprints {
		if !ValidSprint(s) {
			return Vector{}, fmt.Errorf("invalid sprint index %d", s)
		}
		v[s-1] = true
	}
	return v, nil
}

// Has reports whether the 1-based sprint is set.
func (v Vector) Has(sprint int) bool {
	if !ValidSprint(sprint) {
		return false
	}
	return v[sprint-1]
}

// Set toggles the 1-based sprint.
func (v *Vector) Set(sprint int, on bool) {
	if ValidSprint(sprint) {
		v[sprint-1] = on
	}
}

func (v Vector) Count() int {
	n := 0
	for _, on := range v {
		if on {
			n++
		}
	}
	return n
}

func (v Vector) Or(o Vector) Vector {
	var out Vector
	for i := range v {
		out[i] = v[i] || o[i]
	}
	return out
}

func (v Vector) And(o Vector) Vector {
	var out Vector
	for i := range v {
		out[i] = v[i] && o[i]
	}
	return out
}

// AndNot clears every sprint set in o.
func (v Vector) AndNot(o Vector) Vector {
	var out Vector
	for i := range v {
		out[i] = v[i] && !o[i]
	}
	return out
}

// Sprints lists the set sprints as 1-based ordinals in ascending order.
func (v Vector) Sprints() []int {
	out := []int{}
	for i, on := range v {
		if on {
			out = append(out, i+1)
		}
	}
	return out
}

// Ints renders the vector as 0/1 flags, the wire shape of availability.
func (v Vector) Ints() []int {
	out := make([]int, Count)
	for i, on := range v {
		if on {
			out[i] = 1
		}
	}
	return out
}

func (v Vector) String() string {
	var b strings.Builder
	for _, on := range v {
		if on {
			b.WriteByte('X')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// Key addresses the shared resource: one resource/role pair.
type Key struct {
	ResourceName string
	Role         string
}

func (k Key) String() string { return k.ResourceName + "/" + k.Role }

// TribeKey scopes a Key to the requesting tribe.
type TribeKey struct {
	Tribe        string
	ResourceName string
	Role         string
}

func (k TribeKey) Slot() Key { return Key{ResourceName: k.ResourceName, Role: k.Role} }
