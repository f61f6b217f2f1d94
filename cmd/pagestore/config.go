package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Giulio2002/pagestore"
	"github.com/Giulio2002/pagestore/alloc"
	"github.com/Giulio2002/pagestore/keyhash"
)

// Config is the file configuration of the CLI. Missing fields keep the
// values of DefaultConfig.
type Config struct {
	Log       LogConfig             `yaml:"log"`
	Allocator AllocConfig           `yaml:"allocator"`
	Tree      pagestore.BTreeConfig `yaml:"tree"`
	Hash      HashSettings          `yaml:"hash"`
	Workload  WorkloadConfig        `yaml:"workload"`
}

// LogConfig configures the console and rotating file loggers.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// AllocConfig selects where pages live.
//
// Source is one of heap, anonymous, file or bump. file and bump keep their
// region files in Dir; bump carves regions out of larger file chunks.
type AllocConfig struct {
	Source      string `yaml:"source"`
	Dir         string `yaml:"dir"`
	RegionPages int    `yaml:"region_pages"`
}

// HashSettings is the hash table configuration plus the hasher by name.
type HashSettings struct {
	pagestore.HashConfig `yaml:",inline"`

	// Hasher is sip or xx. A zero Seed draws random sip keys.
	Hasher string `yaml:"hasher"`
	Seed   uint64 `yaml:"seed"`
}

// WorkloadConfig shapes the random workload of the run command.
type WorkloadConfig struct {
	Ops        int     `yaml:"ops"`
	KeySpace   int64   `yaml:"key_space"`
	RemoveRate float64 `yaml:"remove_rate"`
	CheckEvery int     `yaml:"check_every"`
	Seed       int64   `yaml:"seed"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			MaxSize:    64,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Allocator: AllocConfig{
			Source:      "heap",
			RegionPages: alloc.DefaultRegionPages,
		},
		Tree: pagestore.DefaultBTreeConfig(),
		Hash: HashSettings{
			HashConfig: pagestore.DefaultHashConfig(),
			Hasher:     "sip",
		},
		Workload: WorkloadConfig{
			Ops:        100000,
			KeySpace:   50000,
			RemoveRate: 0.25,
			CheckEvery: 10000,
			Seed:       1,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks every section.
func (c Config) Validate() error {
	switch c.Allocator.Source {
	case "heap", "anonymous":
	case "file", "bump":
		if c.Allocator.Dir == "" {
			return errors.Errorf("allocator source %s needs a dir", c.Allocator.Source)
		}
	default:
		return errors.Errorf("unknown allocator source %q", c.Allocator.Source)
	}
	if c.Allocator.RegionPages <= 0 {
		return errors.Errorf("region pages %d must be positive", c.Allocator.RegionPages)
	}
	if err := c.Tree.Validate(); err != nil {
		return errors.Wrap(err, "tree")
	}
	hasher, err := c.Hash.newHasher()
	if err != nil {
		return err
	}
	hash := c.Hash.HashConfig
	hash.Hasher = hasher
	if err := hash.Validate(); err != nil {
		return errors.Wrap(err, "hash")
	}
	if c.Workload.Ops < 0 || c.Workload.KeySpace <= 0 {
		return errors.Errorf("workload needs a positive key space, got %d", c.Workload.KeySpace)
	}
	if c.Workload.RemoveRate < 0 || c.Workload.RemoveRate > 1 {
		return errors.Errorf("remove rate %v outside [0, 1]", c.Workload.RemoveRate)
	}
	return nil
}

func (h HashSettings) newHasher() (pagestore.Hasher, error) {
	switch h.Hasher {
	case "sip":
		if h.Seed == 0 {
			sip, err := keyhash.NewSipHasher()
			return sip, errors.Wrap(err, "seed hasher")
		}
		return keyhash.SipHasher{K0: h.Seed, K1: ^h.Seed}, nil
	case "xx":
		return keyhash.XXHasher{Seed: h.Seed}, nil
	default:
		return nil, errors.Errorf("unknown hasher %q", h.Hasher)
	}
}
