// Package config loads Mega's TOML configuration (MEGA_CONFIG or
// ./config.toml) and the handful of environment variables that tune the
// pack decode cache, following the teacher's pkg/serve/config.go shape:
// small toml-tagged structs, env-expansion on load, and a MakeConfig-style
// conversion into the driver-native config type each backend wants.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/go-sql-driver/mysql"

	"github.com/mega-forge/mega/modules/streamio"
)

const defaultPath = "./config.toml"

const maxAllowedPacket = 16 << 20

// Duration round-trips through TOML as a Go duration string ("30s", "5m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Database configures the MySQL-backed ref/lock store.
type Database struct {
	Name    string   `toml:"name"`
	User    string   `toml:"user"`
	Host    string   `toml:"host"`
	Port    int      `toml:"port"`
	Passwd  string   `toml:"passwd"`
	Timeout Duration `toml:"timeout,omitempty"`
}

// MakeConfig converts Database into the go-sql-driver/mysql config the
// store package dials with.
func (d *Database) MakeConfig() *mysql.Config {
	timeout := d.Timeout.Duration
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Passwd
	cfg.DBName = d.Name
	cfg.Net = "tcp"
	cfg.Addr = d.Host + ":" + strconv.Itoa(d.Port)
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	cfg.WriteTimeout = timeout
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.MaxAllowedPacket = maxAllowedPacket
	return cfg
}

// S3 configures the LFS object store bucket.
type S3 struct {
	Bucket string `toml:"bucket"`
	Region string `toml:"region,omitempty"`
}

// Cache configures the ristretto-backed pack decode cache admission policy.
type Cache struct {
	NumCounters int64  `toml:"num_counters"`
	MaxCost     int64  `toml:"max_cost"`
	BufferItems int64  `toml:"buffer_items"`
	SpillPath   string `toml:"spill_path,omitempty"`
}

// Config is the top-level MEGA_CONFIG / config.toml document.
type Config struct {
	Database Database `toml:"database"`
	S3       S3       `toml:"s3"`
	Cache    Cache    `toml:"cache"`
}

// Load reads path (or $MEGA_CONFIG, or ./config.toml) as TOML, expanding
// ${VAR} references first so secrets can be injected via the environment
// rather than committed to disk, matching the teacher's NewExpandReader.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MEGA_CONFIG")
	}
	if path == "" {
		path = defaultPath
	}
	r, err := newExpandReader(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer r.Close()
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyCacheEnvOverrides(&cfg.Cache)
	return &cfg, nil
}

const maxConfigFile = 64 << 20

func newExpandReader(file string) (io.ReadCloser, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	buf, err := streamio.GrowReadMax(fd, maxConfigFile, 4096)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(os.ExpandEnv(string(buf)))), nil
}

// applyCacheEnvOverrides lets PACK_DECODE_MEM_SIZE override cache.max_cost
// with a humanize-parsed byte size ("4G", "512M") and PACK_DECODE_CACHE_PATH
// override cache.spill_path, without requiring a config file edit to tune
// memory in a given deployment. A size that does not parse, such as a
// percentage, leaves cache.max_cost unchanged.
func applyCacheEnvOverrides(c *Cache) {
	if raw := os.Getenv("PACK_DECODE_MEM_SIZE"); raw != "" {
		if n, err := humanize.ParseBytes(raw); err == nil {
			c.MaxCost = int64(n)
		}
	}
	if path := os.Getenv("PACK_DECODE_CACHE_PATH"); path != "" {
		c.SpillPath = path
	}
}
