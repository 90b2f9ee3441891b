// Package config decodes and encodes the repo-scoped config.toml of spec
// §6 ("config.toml — repo-scoped configuration"), using
// github.com/BurntSushi/toml exactly as the teacher's modules/zeta/config
// package decodes zeta.toml.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/hexroot-vcs/core/internal/errs"
)

// User identifies the author/committer signature a transaction stamps onto
// new commits when none is given explicitly.
type User struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// Config is the repo-scoped config.toml shape (spec §6's on-disk layout).
// It intentionally carries only what the repo core itself consults;
// CLI/UI-facing settings (aliases, revset shorthand, templates) are out of
// scope (spec §1) and live in the CLI layer this package does not define.
type Config struct {
	User    User              `toml:"user"`
	Backend string            `toml:"backend,omitempty"`
	Remotes map[string]Remote `toml:"remotes,omitempty"`
}

// Remote is one configured remote's connection info.
type Remote struct {
	URL string `toml:"url"`
}

// Default returns a Config with the native backend and no user identity
// set, matching the teacher's zero-value zeta.toml before `git config`
// equivalents run.
func Default() *Config {
	return &Config{Backend: "native"}
}

// Load decodes config.toml at path. A missing file is not an error: it
// returns Default(), mirroring the teacher's tolerant config loading.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errs.NewPathError(path, err)
	}
	if _, err := toml.Decode(string(raw), cfg); err != nil {
		return nil, errs.NewPathError(path, err)
	}
	return cfg, nil
}

// Save encodes cfg to path, overwriting any existing file.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.NewPathError(path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return errs.NewPathError(path, err)
	}
	return nil
}
