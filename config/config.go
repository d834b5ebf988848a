// Package config reads the settings of an nbmsg run from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that the configuration is read from.
const (
	EnvSize         = "NBMSG_SIZE"
	EnvEagerLimit   = "NBMSG_EAGER_LIMIT"
	EnvMatchTimeout = "NBMSG_MATCH_TIMEOUT"
	EnvTraceDB      = "NBMSG_TRACE_DB"
	EnvMonitorPort  = "NBMSG_MONITOR_PORT"
	EnvParallelID   = "NBMSG_PARALLEL_ID"
	EnvLogLevel     = "NBMSG_LOG_LEVEL"
)

// DefaultEnvFile is loaded when Load is called without files. It is fine for
// it not to exist.
const DefaultEnvFile = ".env"

// Config holds the settings of a run.
type Config struct {
	// Size is the number of endpoints in the world.
	Size int

	// EagerLimit is the largest send, in bytes, that completes without
	// waiting for a matching receive.
	EagerLimit int

	// MatchTimeout fails requests that stay unmatched that long. Zero waits
	// forever.
	MatchTimeout time.Duration

	// TraceDB is the path of the SQLite trace, without extension. Empty
	// disables the trace.
	TraceDB string

	// MonitorPort is the port of the monitoring server. Zero picks a free
	// port.
	MonitorPort int

	// ParallelID selects globally unique IDs instead of sequential ones.
	ParallelID bool

	LogLevel slog.Level
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Size:     2,
		LogLevel: slog.LevelWarn,
	}
}

// Load reads the given env files, or DefaultEnvFile if none is given, into the
// environment and then builds a Config from it. Variables already set in the
// environment take precedence over the files.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		err := godotenv.Load(DefaultEnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", DefaultEnvFile, err)
		}
	} else {
		err := godotenv.Load(envFiles...)
		if err != nil {
			return Config{}, fmt.Errorf("loading env files: %w", err)
		}
	}

	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	c := Default()
	p := parser{}

	p.int(EnvSize, &c.Size)
	p.int(EnvEagerLimit, &c.EagerLimit)
	p.duration(EnvMatchTimeout, &c.MatchTimeout)
	p.string(EnvTraceDB, &c.TraceDB)
	p.int(EnvMonitorPort, &c.MonitorPort)
	p.bool(EnvParallelID, &c.ParallelID)
	p.level(EnvLogLevel, &c.LogLevel)

	if p.err != nil {
		return Config{}, p.err
	}

	return c, c.Validate()
}

// Validate checks that the values make sense together.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", c.Size)
	}

	if c.EagerLimit < 0 {
		return fmt.Errorf("eager limit must not be negative, got %d",
			c.EagerLimit)
	}

	if c.MatchTimeout < 0 {
		return fmt.Errorf("match timeout must not be negative, got %s",
			c.MatchTimeout)
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("invalid monitor port %d", c.MonitorPort)
	}

	return nil
}

// parser keeps the first error so that the fields can be read one after
// another.
type parser struct {
	err error
}

func (p *parser) lookup(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}

	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}

	v = strings.TrimSpace(v)

	return v, v != ""
}

func (p *parser) fail(name, value string, err error) {
	p.err = fmt.Errorf("invalid %s=%q: %w", name, value, err)
}

func (p *parser) string(name string, out *string) {
	if v, ok := p.lookup(name); ok {
		*out = v
	}
}

func (p *parser) int(name string, out *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(name, v, err)
		return
	}

	*out = n
}

func (p *parser) bool(name string, out *bool) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(name, v, err)
		return
	}

	*out = b
}

func (p *parser) duration(name string, out *time.Duration) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(name, v, err)
		return
	}

	*out = d
}

func (p *parser) level(name string, out *slog.Level) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	err := out.UnmarshalText([]byte(v))
	if err != nil {
		p.fail(name, v, err)
	}
}
