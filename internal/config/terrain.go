package config

// Terrain holds the settings of the built-in heightfield mesher.
type Terrain struct {
	Seed      int64   `toml:"seed"`
	SeaLevel  int     `toml:"sea_level"` // in blocks
	BaseLevel int     `toml:"base_level"`
	Amplitude float64 `toml:"amplitude"`
	Scale     float64 `toml:"scale"` // horizontal wavelength in blocks
}

// DefaultTerrain returns gentle hills around sea level.
func DefaultTerrain() Terrain {
	return Terrain{
		Seed:      1,
		SeaLevel:  63,
		BaseLevel: 64,
		Amplitude: 12,
		Scale:     48,
	}
}
