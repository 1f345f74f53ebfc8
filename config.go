package arena

import (
	"bytes"
	"flag"
	"io"
	"os"

	"github.com/alecthomas/units"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pavanmanishd/arena/v2/vmem"
)

const (
	BackendFixed   = "fixed"
	BackendGrowing = "growing"
)

// Config describes an arena to build with Config.New.
type Config struct {
	Backend      string           `yaml:"backend"`
	Size         units.Base2Bytes `yaml:"size"`
	MinBlockSize units.Base2Bytes `yaml:"min_block_size"`
	Debug        Strategy         `yaml:"debug"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.RegisterFlagsWithPrefix("arena.", f)
}

func (c *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Backend, prefix+"backend", BackendGrowing, `Arena backend. Supported values are: fixed, growing.`)
	f.TextVar(&c.Size, prefix+"size", units.Base2Bytes(units.MiB), `Capacity of a fixed-size arena, for example 64KiB or 16MiB.`)
	f.TextVar(&c.MinBlockSize, prefix+"min-block-size", units.Base2Bytes(DefaultMinBlockSize), `Smallest block a growing arena reserves.`)
	f.TextVar(&c.Debug, prefix+"debug", StrategyNone, `Debug strategy. Supported values are: none, logging, overflow_guard, underflow_guard.`)
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendFixed:
		if c.Size < 0 || int64(int(c.Size)) != int64(c.Size) {
			return errors.Errorf("size must be a non-negative size that fits in memory, got: %v", c.Size)
		}
	case BackendGrowing:
		if c.MinBlockSize < 0 || int64(int(c.MinBlockSize)) != int64(c.MinBlockSize) {
			return errors.Errorf("min-block-size must be a non-negative size that fits in memory, got: %v", c.MinBlockSize)
		}
	default:
		return errors.Errorf("unsupported backend %q", c.Backend)
	}
	if _, ok := strategyNames[c.Debug]; !ok {
		return errors.Errorf("unknown debug strategy %d", int(c.Debug))
	}
	return nil
}

// New builds the configured arena over sys. Options given here take
// precedence over the configuration.
func (c Config) New(sys vmem.Subsystem, opts ...Option) (*Arena, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid arena config")
	}
	opts = append([]Option{WithDebug(c.Debug)}, opts...)
	if c.Backend == BackendFixed {
		return NewFixedSize(sys, int(c.Size), opts...)
	}
	return NewGrowing(sys, int(c.MinBlockSize), opts...)
}

// DefaultConfig returns the configuration the flags default to.
func DefaultConfig() Config {
	var c Config
	c.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return c
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their defaults; unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "read arena config")
	}
	if err := c.UnmarshalYAMLBytes(buf); err != nil {
		return c, errors.Wrapf(err, "load arena config %s", path)
	}
	return c, nil
}

// UnmarshalYAMLBytes overlays the YAML document in buf onto c and validates
// the result.
func (c *Config) UnmarshalYAMLBytes(buf []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return c.Validate()
}
