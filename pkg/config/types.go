package config

import "time"

// StoreConfig locates the store file.
type StoreConfig struct {
	// Path overrides serialization_settings.file of the input documents when set.
	Path string `yaml:"path"`
}

// BuildConfig controls a build run.
type BuildConfig struct {
	Precompute bool      `yaml:"precompute"`
	OSMFile    string    `yaml:"osm_file"`
	BBox       []float64 `yaml:"bbox" validate:"omitempty,len=4"` // min_lat, max_lat, min_lng, max_lng
}

// ServerConfig controls the optional HTTP surface of a serve run.
type ServerConfig struct {
	Addr                string        `yaml:"addr" validate:"omitempty,hostname_port"`
	ReadTimeout         time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout        time.Duration `yaml:"write_timeout" validate:"gt=0"`
	RequestTimeout      time.Duration `yaml:"request_timeout" validate:"gt=0"`
	MaxConcurrent       int           `yaml:"max_concurrent" validate:"gt=0"`
	CORSOrigins         []string      `yaml:"cors_origins"`
	NearestRadiusMeters float64       `yaml:"nearest_radius_meters" validate:"gt=0"`
}

// LogConfig controls the standard logger.
type LogConfig struct {
	Microseconds bool   `yaml:"microseconds"`
	Prefix       string `yaml:"prefix"`
}

// Config is the root configuration structure.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Build  BuildConfig  `yaml:"build"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}
