package world

import (
	"gputerrain/internal/config"
	"gputerrain/internal/region"
)

// RegionBudget is the number of region ids needed to hold every section a
// Streamer may keep resident: columns up to radius sections from the camera
// on each axis, height sections tall from y=0. An unaligned square of side
// n touches up to ceil(n/8)+1 regions per horizontal axis.
func RegionBudget(radius, height int) int {
	side := 2*radius + 1
	across := (side+region.Width-1)/region.Width + 1
	deep := (side+region.Depth-1)/region.Depth + 1
	tall := (max(height, 1) + region.Height - 1) / region.Height
	return min(max(across*deep*tall, config.MaxRegions(radius, height)), region.MaxIDs)
}
