package config

import (
	"errors"
	"fmt"
)

// ErrUnknownLevel is returned when a level name cannot be decoded.
var ErrUnknownLevel = errors.New("unknown level")

// SortingLevel controls how much translucency sorting the pipeline does.
type SortingLevel int

const (
	SortNone SortingLevel = iota
	SortSections
	SortQuads
)

var sortingNames = [...]string{"none", "sections", "quads"}

func (l SortingLevel) String() string {
	if l < 0 || int(l) >= len(sortingNames) {
		return fmt.Sprintf("SortingLevel(%d)", int(l))
	}
	return sortingNames[l]
}

func (l SortingLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *SortingLevel) UnmarshalText(text []byte) error {
	for i, n := range sortingNames {
		if n == string(text) {
			*l = SortingLevel(i)
			return nil
		}
	}
	return fmt.Errorf("translucency sorting %q: %w", text, ErrUnknownLevel)
}

// StatisticsLevel controls which counters are collected each frame. Levels
// are ordered; each one includes everything below it.
type StatisticsLevel int

const (
	StatsNone StatisticsLevel = iota
	StatsFrustum
	StatsRegions
	StatsSections
	StatsQuads
)

var statisticsNames = [...]string{"none", "frustum", "regions", "sections", "quads"}

func (l StatisticsLevel) String() string {
	if l < 0 || int(l) >= len(statisticsNames) {
		return fmt.Sprintf("StatisticsLevel(%d)", int(l))
	}
	return statisticsNames[l]
}

func (l StatisticsLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *StatisticsLevel) UnmarshalText(text []byte) error {
	for i, n := range statisticsNames {
		if n == string(text) {
			*l = StatisticsLevel(i)
			return nil
		}
	}
	return fmt.Errorf("statistics level %q: %w", text, ErrUnknownLevel)
}
