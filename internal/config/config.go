package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk shape of the pipeline configuration.
type File struct {
	RenderDistance      int             `toml:"render_distance"`
	WorldHeight         int             `toml:"world_height"` // in sections
	RegionKeepDistance  int             `toml:"region_keep_distance"`
	TemporalCoherence   bool            `toml:"temporal_coherence"`
	TranslucencySorting SortingLevel    `toml:"translucency_sorting"`
	StatisticsLevel     StatisticsLevel `toml:"statistics_level"`
	RenderFog           bool            `toml:"render_fog"`
	FaceCulling         bool            `toml:"face_culling"`
	UploadFrames        int             `toml:"upload_frames"`
	UploadStreamBytes   int             `toml:"upload_stream_bytes"`
	ArenaBytes          int             `toml:"arena_bytes"`
	ShaderDir           string          `toml:"shader_dir"`
	WatchShaders        bool            `toml:"watch_shaders"`
	Terrain             Terrain         `toml:"terrain"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() File {
	return File{
		RenderDistance:      16,
		WorldHeight:         24,
		RegionKeepDistance:  0,
		TemporalCoherence:   true,
		TranslucencySorting: SortQuads,
		StatisticsLevel:     StatsNone,
		RenderFog:           true,
		FaceCulling:         true,
		UploadFrames:        3,
		UploadStreamBytes:   160_000_000,
		ArenaBytes:          1 << 30,
		ShaderDir:           "assets/shaders",
		Terrain:             DefaultTerrain(),
	}
}

// Settings holds pipeline configuration that may change while rendering.
// All accessors are safe for concurrent use.
type Settings struct {
	mu sync.RWMutex
	f  File
}

// New wraps f after clamping it into supported ranges.
func New(f File) *Settings {
	s := &Settings{f: f}
	s.f.RenderDistance = clampRenderDistance(f.RenderDistance)
	if s.f.WorldHeight < 1 {
		s.f.WorldHeight = 1
	}
	if s.f.RegionKeepDistance < 0 {
		s.f.RegionKeepDistance = 0
	}
	if s.f.UploadFrames < 1 {
		s.f.UploadFrames = 1
	}
	return s
}

// Parse decodes TOML on top of Defaults.
func Parse(data []byte) (*Settings, error) {
	f := Defaults()
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return New(f), nil
}

// Load reads and decodes the TOML file at path.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

// Snapshot returns a copy of the current values.
func (s *Settings) Snapshot() File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f
}

// RenderDistance returns the render distance in chunks
func (s *Settings) RenderDistance() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f.RenderDistance
}

// SetRenderDistance sets the render distance in chunks
func (s *Settings) SetRenderDistance(distance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.RenderDistance = clampRenderDistance(distance)
}

func clampRenderDistance(distance int) int {
	// Clamp to reasonable values
	if distance < 2 {
		distance = 2
	}
	if distance > 64 {
		distance = 64
	}
	return distance
}

// RegionKeepDistance returns the distance in chunks beyond which regions are
// evicted. Zero disables eviction.
func (s *Settings) RegionKeepDistance() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f.RegionKeepDistance
}

// SetRegionKeepDistance sets the eviction distance; negative values disable it.
func (s *Settings) SetRegionKeepDistance(distance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if distance < 0 {
		distance = 0
	}
	s.f.RegionKeepDistance = distance
}

func (s *Settings) TemporalCoherence() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f.TemporalCoherence
}

func (s *Settings) SetTemporalCoherence(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.TemporalCoherence = enabled
}

func (s *Settings) TranslucencySorting() SortingLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f.TranslucencySorting
}

func (s *Settings) SetTranslucencySorting(level SortingLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.TranslucencySorting = level
}

func (s *Settings) StatisticsLevel() StatisticsLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f.StatisticsLevel
}

func (s *Settings) SetStatisticsLevel(level StatisticsLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.StatisticsLevel = level
}

// RenderFog reports whether fog is requested. Stage programs only pick the
// change up on the next program reload.
func (s *Settings) RenderFog() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f.RenderFog
}

func (s *Settings) SetRenderFog(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.RenderFog = enabled
}

func (s *Settings) FaceCulling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f.FaceCulling
}

func (s *Settings) SetFaceCulling(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.FaceCulling = enabled
}

// MaxRegions returns the region capacity needed to cover a square of
// (2*renderDistance+1)^2 chunk columns, heightSections tall, with regions of
// 8x4x8 sections.
func MaxRegions(renderDistance, heightSections int) int {
	width := 2*renderDistance + 1
	columns := width * width
	// ceil(columns/64 * height/4) without going through floats
	num := columns * heightSections
	return (num+255)/256 + 1
}
