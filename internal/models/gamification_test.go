package models

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestPointsForMode(t *testing.T) {
	assert.Equal(t, 20, PointsForMode(ModeProblem))
	assert.Equal(t, 10, PointsForMode(ModeFurnitureOK))
	assert.Equal(t, 10, PointsForMode(ModeSuggestion))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 0, LevelFor(-5))
	assert.Equal(t, 0, LevelFor(0))
	assert.Equal(t, 0, LevelFor(49))
	assert.Equal(t, 1, LevelFor(50))
	assert.Equal(t, 2, LevelFor(120))
}

func TestModeRequirements(t *testing.T) {
	assert.True(t, ModeProblem.RequiresPhoto())
	assert.True(t, ModeFurnitureOK.RequiresPhoto())
	assert.False(t, ModeSuggestion.RequiresPhoto())

	assert.True(t, ModeProblem.AllowsType())
	assert.False(t, ModeFurnitureOK.AllowsType())
	assert.False(t, ModeSuggestion.AllowsType())
}

func TestAlreadyValidatedBy(t *testing.T) {
	report := &Report{ValidatedBy: pq.StringArray{"u1", "u2"}}
	assert.True(t, report.AlreadyValidatedBy("u1"))
	assert.False(t, report.AlreadyValidatedBy("u3"))
}
