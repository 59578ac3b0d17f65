package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSprints(t *testing.T) {
	v, err := FromSprints([]int{1, 3, 6})
	require.NoError(t, err)
	assert.Equal(t, Vector{true, false, true, false, false, true}, v)
	assert.Equal(t, 3, v.Count())
	assert.Equal(t, []int{1, 3, 6}, v.Sprints())
	assert.Equal(t, "X.X..X", v.String())

	_, err = FromSprints([]int{0})
	assert.Error(t, err)
	_, err = FromSprints([]int{7})
	assert.Error(t, err)
}

func TestVectorOps(t *testing.T) {
	a := Vector{true, true, false, false, false, false}
	b := Vector{false, true, true, false, false, false}
	assert.Equal(t, Vector{true, true, true, false, false, false}, a.Or(b))
	assert.Equal(t, Vector{false, true, false, false, false, false}, a.And(b))
	assert.Equal(t, Vector{true, false, false, false, false, false}, a.AndNot(b))
	assert.Equal(t, []int{1, 1, 0, 0, 0, 0}, a.Ints())
	assert.True(t, a.Has(2))
	assert.False(t, a.Has(3))
	assert.False(t, a.Has(9))

	a.Set(6, true)
	assert.True(t, a.Has(6))
	a.Set(0, true)
	assert.Equal(t, 3, a.Count())
	assert.Empty(t, Vector{}.Sprints())
}

func TestKeys(t *testing.T) {
	k := TribeKey{Tribe: "A", ResourceName: "R1", Role: "Dev"}
	assert.Equal(t, Key{ResourceName: "R1", Role: "Dev"}, k.Slot())
	assert.Equal(t, "R1/Dev", k.Slot().String())

	seen := map[Key]int{}
	seen[k.Slot()]++
	seen[Key{ResourceName: "R1", Role: "Dev"}]++
	assert.Equal(t, 2, seen[Key{ResourceName: "R1", Role: "Dev"}])
}
