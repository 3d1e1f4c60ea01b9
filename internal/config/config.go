// Package config loads the daemon's configuration once at startup
// from a YAML file, producing an immutable Config that every session
// captures a snapshot from.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ianremillard/shoal/internal/keybind"
)

// RestoreModeKind discriminates SessionRestoreMode's variants.
type RestoreModeKind string

const (
	RestoreSimple RestoreModeKind = "simple"
	RestoreScreen RestoreModeKind = "screen"
	RestoreLines  RestoreModeKind = "lines"
)

// SessionRestoreMode mirrors the original's SessionRestoreMode enum,
// with Lines carrying its u16 count (spec's SUPPLEMENTED FEATURES #2).
type SessionRestoreMode struct {
	Kind  RestoreModeKind
	Lines uint16
}

// UnmarshalYAML accepts either a bare scalar ("simple", "screen") or a
// mapping ({lines: 10}), matching the original TOML encoding's shape
// (`session_restore_mode = "simple"` vs `{ lines = 10 }`) translated
// to YAML.
func (m *SessionRestoreMode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		switch value.Value {
		case "simple":
			*m = SessionRestoreMode{Kind: RestoreSimple}
			return nil
		case "screen":
			*m = SessionRestoreMode{Kind: RestoreScreen}
			return nil
		}
		return fmt.Errorf("config: unknown session_restore_mode %q", value.Value)
	}
	var lines struct {
		Lines uint16 `yaml:"lines"`
	}
	if err := value.Decode(&lines); err != nil {
		return fmt.Errorf("config: invalid session_restore_mode: %w", err)
	}
	*m = SessionRestoreMode{Kind: RestoreLines, Lines: lines.Lines}
	return nil
}

// MotdModeKind discriminates MotdDisplayMode's variants. Parsed and
// stored (supplemented feature #1) but never acted on: motd rendering
// is an out-of-scope external collaborator per spec §1.
type MotdModeKind string

const (
	MotdNever MotdModeKind = "never"
	MotdPager MotdModeKind = "pager"
	MotdDump  MotdModeKind = "dump"
)

// MotdDisplayMode mirrors the original's MotdDisplayMode enum.
type MotdDisplayMode struct {
	Kind MotdModeKind
	Bin  string
}

func (m *MotdDisplayMode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		switch value.Value {
		case "never", "":
			*m = MotdDisplayMode{Kind: MotdNever}
			return nil
		case "dump":
			*m = MotdDisplayMode{Kind: MotdDump}
			return nil
		}
		return fmt.Errorf("config: unknown motd mode %q", value.Value)
	}
	var pager struct {
		Bin string `yaml:"bin"`
	}
	if err := value.Decode(&pager); err != nil {
		return fmt.Errorf("config: invalid motd pager mode: %w", err)
	}
	*m = MotdDisplayMode{Kind: MotdPager, Bin: pager.Bin}
	return nil
}

// Config is the full parsed shape of the daemon's config file. Field
// set and names are taken directly from the original's Config struct
// (config.rs); see SPEC_FULL's SUPPLEMENTED FEATURES #1 for which
// fields the core parses but never acts on.
type Config struct {
	Shell string `yaml:"shell"`
	Norc  bool   `yaml:"norc"`

	NoEcho                bool `yaml:"noecho"`
	NoSymlinkSSHAuthSock  bool `yaml:"nosymlink_ssh_auth_sock"`
	NoReadEtcEnvironment  bool `yaml:"noread_etc_environment"`

	Env         map[string]string `yaml:"env"`
	ForwardEnv  []string          `yaml:"forward_env"`
	InitialPath string            `yaml:"initial_path"`

	SessionRestoreMode SessionRestoreMode `yaml:"session_restore_mode"`
	OutputSpoolLines   int                `yaml:"output_spool_lines"`

	Keybinding []keybind.Binding `yaml:"keybinding"`

	PromptPrefix string `yaml:"prompt_prefix"`

	Motd     MotdDisplayMode `yaml:"motd"`
	MotdArgs []string        `yaml:"motd_args"`
}

// Default returns the all-defaults Config used when no config file is
// present, matching the original's Config::default() fallback.
func Default() Config {
	return Config{
		SessionRestoreMode: SessionRestoreMode{Kind: RestoreScreen},
		OutputSpoolLines:   10000,
	}
}

// Load reads and parses the config file at path. A missing file
// produces Default(), not an error (matches the original's
// Config::default() fallback); any other read or parse failure is
// returned to the caller.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath resolves $XDG_CONFIG_HOME/shoal/config.yaml, falling
// back to ~/.config/shoal/config.yaml.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shoal", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "shoal", "config.yaml"), nil
}
