package world

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gputerrain/internal/config"
	"gputerrain/internal/geometry"
	"gputerrain/internal/meshing"
	"gputerrain/internal/region"
)

func newTestStreamer(t *testing.T, height int) (*Streamer, *geometry.WorkerPool) {
	t.Helper()
	pool := geometry.NewWorkerPool(2, 256)
	s := NewStreamer(meshing.NewMesher(config.DefaultTerrain()), pool, height, 2, nil)
	t.Cleanup(func() {
		pool.Shutdown()
		s.Close()
	})
	return s, pool
}

func collectAll(t *testing.T, s *Streamer, want int) []geometry.RepackResult {
	t.Helper()
	var got []geometry.RepackResult
	require.Eventually(t, func() bool {
		ch := s.Collect(64)
		for len(ch) > 0 {
			got = append(got, <-ch)
		}
		return len(got) >= want
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func TestStreamAroundQueuesEachSectionOnce(t *testing.T) {
	s, _ := newTestStreamer(t, 2)
	camera := mgl64.Vec3{8, 70, 8}

	assert.Equal(t, 9*2, s.StreamAround(camera, 1))
	assert.Equal(t, 0, s.StreamAround(camera, 1))
	assert.Equal(t, 18, s.Loaded())

	results := collectAll(t, s, 18)
	seen := map[geometry.SectionPos]bool{}
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.False(t, seen[res.Pos], "duplicate %v", res.Pos)
		seen[res.Pos] = true
		assert.LessOrEqual(t, abs(int(res.Pos.X)), 1)
		assert.LessOrEqual(t, abs(int(res.Pos.Z)), 1)
	}
}

func TestStreamAroundNegativeCoordinates(t *testing.T) {
	s, _ := newTestStreamer(t, 1)
	s.StreamAround(mgl64.Vec3{-0.5, 0, -17}, 0)

	results := collectAll(t, s, 1)
	assert.Equal(t, geometry.SectionPos{X: -1, Y: 0, Z: -2}, results[0].Pos)
}

func TestEvictFarDropsDistantColumns(t *testing.T) {
	s, _ := newTestStreamer(t, 1)
	s.StreamAround(mgl64.Vec3{8, 0, 8}, 2)
	require.Equal(t, 25, s.Loaded())

	var dropped []geometry.SectionPos
	n := s.EvictFar(mgl64.Vec3{8 + 16*2, 0, 8}, 2, func(pos geometry.SectionPos) {
		dropped = append(dropped, pos)
	})
	// columns x = -2 and -1 are now more than two sections away
	assert.Equal(t, 10, n)
	assert.Len(t, dropped, 10)
	for _, pos := range dropped {
		assert.Less(t, pos.X, int32(0))
	}
	assert.Equal(t, 15, s.Loaded())
}

func TestCollectDiscardsEvictedSections(t *testing.T) {
	s, pool := newTestStreamer(t, 1)
	s.StreamAround(mgl64.Vec3{8, 0, 8}, 0)

	// wait for the result to be ready before evicting
	require.Eventually(t, func() bool { return len(pool.Results()) == 1 }, 5*time.Second, 5*time.Millisecond)
	s.EvictFar(mgl64.Vec3{1000, 0, 1000}, 1, func(geometry.SectionPos) {})

	assert.Zero(t, len(s.Collect(8)))
	assert.Equal(t, 1, s.Dropped())
}

func TestRegionBudgetCoversUnalignedSquare(t *testing.T) {
	// 33 columns wide spans 6 regions when unaligned, 24 sections tall is 6 layers
	assert.Equal(t, 6*6*6, RegionBudget(16, 24))
	assert.Equal(t, 2*2*1, RegionBudget(0, 1))
	assert.GreaterOrEqual(t, RegionBudget(2, 4), 4)
}

func TestEvictThenStreamStaysWithinRegionBudget(t *testing.T) {
	const radius, height = 2, 24
	s, _ := newTestStreamer(t, height)
	budget := RegionBudget(radius+1, height)

	// five sections per step on both axes, faster than any eviction timer
	camera := mgl64.Vec3{8, 70, 8}
	for range 12 {
		camera = camera.Add(mgl64.Vec3{80, 0, 80})
		s.EvictFar(camera, radius+1, func(geometry.SectionPos) {})
		s.StreamAround(camera, radius)

		regions := map[region.Pos]bool{}
		for pos := range s.loaded {
			regions[region.Of(pos)] = true
		}
		require.LessOrEqual(t, len(regions), budget)
		for ch := s.Collect(4096); len(ch) > 0; {
			<-ch
		}
	}
}

func TestColumn(t *testing.T) {
	assert.Equal(t, [2]int{0, 0}, Column(mgl64.Vec3{15.9, -400, 0}))
	assert.Equal(t, [2]int{-1, 2}, Column(mgl64.Vec3{-0.1, 0, 32}))
}
