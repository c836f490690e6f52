package presets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rufs-go/rufs/presets"
)

func TestGetKnownPreset(t *testing.T) {
	p, err := presets.Get("default")
	require.NoError(t, err)
	assert.EqualValues(t, 1024, p.Params.MaxInodes)
	assert.EqualValues(t, 16384, p.Params.MaxDataBlks)
}

func TestGetUnknownPresetErrors(t *testing.T) {
	_, err := presets.Get("does-not-exist")
	assert.Error(t, err)
}

func TestSlugsListsEveryPreset(t *testing.T) {
	slugs := presets.Slugs()
	assert.Contains(t, slugs, "tiny")
	assert.Contains(t, slugs, "default")
	assert.Len(t, slugs, 4)
}
