package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSprints(t *testing.T) {
	got, err := parseSprints("1, S3 6")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 6}, got)

	got, err = parseSprints("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseSprints("7")
	assert.Error(t, err)
	_, err = parseSprints("x")
	assert.Error(t, err)
}
