package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverridesDefaults(t *testing.T) {
	s, err := Parse([]byte(`
render_distance = 8
translucency_sorting = "none"
statistics_level = "sections"
render_fog = false

[terrain]
sea_level = 40
`))
	require.NoError(t, err)

	assert.Equal(t, 8, s.RenderDistance())
	assert.Equal(t, SortNone, s.TranslucencySorting())
	assert.Equal(t, StatsSections, s.StatisticsLevel())
	assert.False(t, s.RenderFog())
	// untouched keys keep their defaults
	assert.True(t, s.TemporalCoherence())
	snap := s.Snapshot()
	assert.Equal(t, 24, snap.WorldHeight)
	assert.Equal(t, 40, snap.Terrain.SeaLevel)
	assert.Equal(t, DefaultTerrain().Amplitude, snap.Terrain.Amplitude)
}

func TestParseRejectsUnknownLevel(t *testing.T) {
	_, err := Parse([]byte(`statistics_level = "everything"`))
	require.Error(t, err)

	var l StatisticsLevel
	assert.True(t, errors.Is(l.UnmarshalText([]byte("everything")), ErrUnknownLevel))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.toml")
	require.NoError(t, os.WriteFile(path, []byte("region_keep_distance = 12\n"), 0o644))
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, s.RegionKeepDistance())
}

func TestRenderDistanceClamped(t *testing.T) {
	s := New(Defaults())
	s.SetRenderDistance(1)
	assert.Equal(t, 2, s.RenderDistance())
	s.SetRenderDistance(500)
	assert.Equal(t, 64, s.RenderDistance())

	s.SetRegionKeepDistance(-3)
	assert.Equal(t, 0, s.RegionKeepDistance())
}

func TestMaxRegions(t *testing.T) {
	// 33x33 columns, 24 sections tall: ceil(1089*24/256) + 1
	assert.Equal(t, 104, MaxRegions(16, 24))
	assert.Equal(t, 2, MaxRegions(0, 4))
}

func TestLevelText(t *testing.T) {
	var l StatisticsLevel
	require.NoError(t, l.UnmarshalText([]byte("quads")))
	assert.Equal(t, StatsQuads, l)
	b, err := SortSections.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "sections", string(b))
	assert.Equal(t, "SortingLevel(9)", SortingLevel(9).String())
}
