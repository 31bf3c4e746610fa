package manifest

import (
	"flag"
	"log"
	"os"
)

// Config locates the manifest.
type Config struct {
	Path string
}

var defaultConfig Config

func init() {
	if val := os.Getenv("ARDU_MANIFEST"); val != "" {
		defaultConfig.Path = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Path, "manifest", defaultConfig.Path, "Board manifest in YAML.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load loads the manifest, nil when no path is configured.
func (c *Config) Load() (*Manifest, error) {
	if c.Path == "" {
		return nil, nil
	}
	return Load(c.Path)
}

// MustLoad loads the manifest and fails on error.
func (c *Config) MustLoad() *Manifest {
	m, err := c.Load()
	if err != nil {
		log.Fatalln(err)
	}
	return m
}
