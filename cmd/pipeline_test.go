package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarbstats/econ-cli/internal/model"
)

func TestParseSkipStages(t *testing.T) {
	skip, err := parseSkipStages("")
	require.NoError(t, err)
	assert.Empty(t, skip)

	skip, err = parseSkipStages("land")
	require.NoError(t, err)
	assert.True(t, skip[model.StageLand])
	assert.False(t, skip[model.StageValidate])

	skip, err = parseSkipStages("land, annotate")
	require.NoError(t, err)
	assert.True(t, skip[model.StageLand])
	assert.True(t, skip[model.StageAnnotate])

	_, err = parseSkipStages("land,teardown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}
