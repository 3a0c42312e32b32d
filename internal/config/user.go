package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the per-user configuration document in the home directory.
const DefaultFileName = ".alphacentauri.config.json"

// UserConfig is the persisted user configuration document.
type UserConfig struct {
	Shell   Shell             `json:"shell" yaml:"shell"`
	Keymaps map[string]string `json:"keymaps" yaml:"keymaps"`
}

// Shell holds the launch defaults for new sessions. An empty Program means
// the platform default shell.
type Shell struct {
	Program string            `json:"program" yaml:"program"`
	Args    []string          `json:"args" yaml:"args"`
	Env     map[string]string `json:"env" yaml:"env"`
	Bell    bool              `json:"bell" yaml:"bell"`
}

// KeyCommand is one keymap entry in the list form the UI displays.
type KeyCommand struct {
	CommandName string `json:"commandName"`
	KeyCombo    string `json:"keyCombo"`
}

// The on-disk document is decoded through pointers so that missing required
// fields can be told apart from empty ones.
type rawUserConfig struct {
	Shell   *rawShell          `json:"shell" yaml:"shell"`
	Keymaps *map[string]string `json:"keymaps" yaml:"keymaps"`
}

type rawShell struct {
	Program *string            `json:"program" yaml:"program"`
	Args    *[]string          `json:"args" yaml:"args"`
	Env     *map[string]string `json:"env" yaml:"env"`
	Bell    *bool              `json:"bell" yaml:"bell"`
}

// DefaultPath returns the configuration path in the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Default returns the built-in configuration used on first run.
func Default() *UserConfig {
	return &UserConfig{
		Shell: Shell{
			Program: "",
			Args:    []string{},
			Env:     map[string]string{},
			Bell:    true,
		},
		Keymaps: map[string]string{
			"edit:copy":          "ctrl+shift+c",
			"edit:paste":         "ctrl+shift+v",
			"edit:select_all":    "ctrl+shift+a",
			"edit:interrupt":     "ctrl+c",
			"window:new_tab":     "ctrl+shift+t",
			"window:next_tab":    "ctrl+shift+ArrowRight",
			"window:prev_tab":    "ctrl+shift+ArrowLeft",
			"window:split_right": "ctrl+shift+d",
			"window:split_down":  "ctrl+shift+e",
		},
	}
}

// Clone returns a deep copy of c.
func (c *UserConfig) Clone() *UserConfig {
	if c == nil {
		return nil
	}
	out := &UserConfig{
		Shell: Shell{
			Program: c.Shell.Program,
			Args:    slices.Clone(c.Shell.Args),
			Env:     maps.Clone(c.Shell.Env),
			Bell:    c.Shell.Bell,
		},
		Keymaps: maps.Clone(c.Keymaps),
	}
	return out
}

// KeymapList returns the keymaps as a list ordered by command name.
func (c *UserConfig) KeymapList() []KeyCommand {
	list := make([]KeyCommand, 0, len(c.Keymaps))
	for name, combo := range c.Keymaps {
		list = append(list, KeyCommand{CommandName: name, KeyCombo: combo})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CommandName < list[j].CommandName
	})
	return list
}

// LoadOrInitialize loads the document at path. When no file exists the
// built-in default is returned, and written to path first if
// persistIfMissing is set. A failed write still returns the default together
// with the *ConfigError so the caller can start anyway.
func LoadOrInitialize(path string, persistIfMissing bool) (*UserConfig, error) {
	if _, err := os.Stat(path); err == nil {
		slog.Debug("configuration file found", "path", path)
		return load(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &ConfigError{Kind: KindRead, Path: path, Err: err}
	}

	slog.Debug("configuration file not found, using defaults", "path", path, "persist", persistIfMissing)
	cfg := Default()
	if !persistIfMissing {
		return cfg, nil
	}
	if err := Save(path, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path, pretty-printed. Paths ending in .yaml or .yml are
// written as YAML.
func Save(path string, cfg *UserConfig) error {
	if cfg == nil {
		return &ConfigError{Kind: KindWrite, Path: path, Err: errors.New("nil configuration")}
	}
	doc := normalize(cfg.Clone())

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return &ConfigError{Kind: KindWrite, Path: path, Err: err}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &ConfigError{Kind: KindWrite, Path: path, Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &ConfigError{Kind: KindWrite, Path: path, Err: err}
	}
	return nil
}

func load(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Kind: KindRead, Path: path, Err: err}
	}

	var raw rawUserConfig
	if isYAML(path) {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, &ConfigError{Kind: KindParse, Path: path, Err: err}
	}

	cfg, err := raw.build()
	if err != nil {
		return nil, &ConfigError{Kind: KindParse, Path: path, Err: err}
	}
	return cfg, nil
}

func (r rawUserConfig) build() (*UserConfig, error) {
	var missing []string
	if r.Shell == nil {
		missing = append(missing, "shell")
	} else {
		if r.Shell.Program == nil {
			missing = append(missing, "shell.program")
		}
		if r.Shell.Args == nil {
			missing = append(missing, "shell.args")
		}
		if r.Shell.Env == nil {
			missing = append(missing, "shell.env")
		}
		if r.Shell.Bell == nil {
			missing = append(missing, "shell.bell")
		}
	}
	if r.Keymaps == nil {
		missing = append(missing, "keymaps")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}

	cfg := &UserConfig{
		Shell: Shell{
			Program: *r.Shell.Program,
			Args:    *r.Shell.Args,
			Env:     *r.Shell.Env,
			Bell:    *r.Shell.Bell,
		},
		Keymaps: *r.Keymaps,
	}
	return normalize(cfg), nil
}

func normalize(cfg *UserConfig) *UserConfig {
	if cfg.Shell.Args == nil {
		cfg.Shell.Args = []string{}
	}
	if cfg.Shell.Env == nil {
		cfg.Shell.Env = map[string]string{}
	}
	if cfg.Keymaps == nil {
		cfg.Keymaps = map[string]string{}
	}
	return cfg
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
