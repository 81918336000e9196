// Package config loads run configuration: an optional YAML file, an optional
// .env file and TRANSIT_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when the merged configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

const envPrefix = "TRANSIT_"

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Build: BuildConfig{Precompute: true},
		Server: ServerConfig{
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        5 * time.Second,
			RequestTimeout:      5 * time.Second,
			MaxConcurrent:       runtime.NumCPU() * 2,
			NearestRadiusMeters: 500,
		},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
// envFiles default to ".env"; missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// applyEnv overrides fields from TRANSIT_* variables.
func applyEnv(cfg *Config) error {
	if v, ok := lookup("STORE"); ok {
		cfg.Store.Path = v
	}
	if v, ok := lookup("OSM_FILE"); ok {
		cfg.Build.OSMFile = v
	}
	if v, ok := lookup("PRECOMPUTE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sPRECOMPUTE: %w", ErrInvalid, envPrefix, err)
		}
		cfg.Build.Precompute = b
	}
	if v, ok := lookup("HTTP_ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := lookup("MAX_CONCURRENT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_CONCURRENT: %w", ErrInvalid, envPrefix, err)
		}
		cfg.Server.MaxConcurrent = n
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sREQUEST_TIMEOUT: %w", ErrInvalid, envPrefix, err)
		}
		cfg.Server.RequestTimeout = d
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		cfg.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, o)
			}
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// InitLogging sends the standard logger to stderr so stdout stays reserved
// for answers.
func InitLogging(cfg LogConfig) {
	log.SetOutput(os.Stderr)
	flags := log.LstdFlags
	if cfg.Microseconds {
		flags |= log.Lmicroseconds
	}
	log.SetFlags(flags)
	log.SetPrefix(cfg.Prefix)
}
