package pipeline

import (
	"strconv"
	"strings"

	"gputerrain/internal/config"
)

const statisticsSize = 4 * 4

// Statistics are the counters of the last frames. Frustum is counted on the
// host; the rest are written by the stages and arrive a few frames late.
type Statistics struct {
	Frustum  int
	Regions  int
	Sections int
	Quads    int
}

// Lines formats the counters enabled at level for a debug overlay.
func (s Statistics) Lines(level config.StatisticsLevel) []string {
	if level == config.StatsNone {
		return nil
	}
	var b strings.Builder
	b.WriteString("Statistics: F: ")
	b.WriteString(strconv.Itoa(s.Frustum))
	if level >= config.StatsRegions {
		b.WriteString(", R: ")
		b.WriteString(strconv.Itoa(s.Regions))
	}
	if level >= config.StatsSections {
		b.WriteString(", S: ")
		b.WriteString(strconv.Itoa(s.Sections))
	}
	if level >= config.StatsQuads {
		b.WriteString(", Q: ")
		b.WriteString(strconv.Itoa(s.Quads))
	}
	return []string{b.String()}
}
