package optimize

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/causality-lang/causality/internal/diag"
)

// DefaultMaxIterations bounds the fixpoint loop when the config leaves
// MaxIterations zero.
const DefaultMaxIterations = 16

// Optimization levels. Each level enables the passes of the levels below
// it; an explicit pass list overrides the level entirely.
const (
	LevelNone       = 0 // no rewriting
	LevelBasic      = 1 // cse, dce
	LevelStandard   = 2 // + fuse, inline
	LevelAggressive = 3 // + reorder
)

// Config selects and bounds the optimization pipeline.
type Config struct {
	// Passes, when non-empty, names the exact passes to run and takes
	// precedence over Level.
	Passes []string `yaml:"passes"`

	// Level picks a predefined pass set, 0 through 3.
	Level int `yaml:"level"`

	// MaxIterations caps the fixpoint loop. Zero means the default.
	MaxIterations int `yaml:"max_iterations"`

	// CrossDomain permits the reorder pass to decouple effects that live
	// in different domains. Off by default: cross-domain order is part of
	// the observable protocol between sessions.
	CrossDomain bool `yaml:"cross_domain"`
}

// DefaultConfig is the pipeline used when no explicit configuration is
// supplied.
func DefaultConfig() Config {
	return Config{Level: LevelStandard, MaxIterations: DefaultMaxIterations}
}

// LoadConfig reads a YAML pipeline configuration from path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, diag.Wrap(diag.CategoryOptimize, "CONFIG_READ", "reading optimizer config", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, diag.Wrap(diag.CategoryOptimize, "CONFIG_PARSE", "parsing optimizer config", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Level < LevelNone || c.Level > LevelAggressive {
		return diag.Newf(diag.CategoryOptimize, "CONFIG_LEVEL", "optimization level %d out of range [0, 3]", c.Level)
	}

	if c.MaxIterations < 0 {
		return diag.Newf(diag.CategoryOptimize, "CONFIG_ITERATIONS", "max_iterations %d is negative", c.MaxIterations)
	}

	for _, name := range c.Passes {
		if !knownPass(name) {
			return diag.Newf(diag.CategoryOptimize, "CONFIG_PASS", "unknown pass %q", name)
		}
	}

	return nil
}

func knownPass(name string) bool {
	for _, p := range passOrder {
		if p.Name() == name {
			return true
		}
	}

	return false
}

// enabledSet resolves the explicit pass list or the level into the set of
// pass names to run.
func (c Config) enabledSet() map[string]bool {
	out := make(map[string]bool)

	if len(c.Passes) > 0 {
		for _, name := range c.Passes {
			out[name] = true
		}

		return out
	}

	if c.Level >= LevelBasic {
		out["cse"] = true
		out["dce"] = true
	}

	if c.Level >= LevelStandard {
		out["fuse"] = true
		out["inline"] = true
	}

	if c.Level >= LevelAggressive {
		out["reorder"] = true
	}

	return out
}
