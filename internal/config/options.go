package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultPort = 8765
	DefaultHost = "127.0.0.1"
)

// Options are the host settings resolved from the command line.
type Options struct {
	Host  string
	Port  int
	Token string
	// ConfigPath is the user configuration document. When it was supplied
	// explicitly, PersistDefault is false and no default file is generated.
	ConfigPath     string
	PersistDefault bool
	DBPath         string
	Verbose        bool
	JSONLogs       bool
}

// DefaultOptions returns host options rooted in the user's home directory.
func DefaultOptions() (*Options, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &Options{
		Host:           DefaultHost,
		Port:           DefaultPort,
		ConfigPath:     filepath.Join(homeDir, DefaultFileName),
		PersistDefault: true,
		DBPath:         filepath.Join(homeDir, ".config", "alphacentauri", "alphacentauri.db"),
	}, nil
}

// SetConfigPath points the options at an explicit configuration file, which
// also turns off default-file generation.
func (o *Options) SetConfigPath(path string) {
	if path == "" {
		return
	}
	o.ConfigPath = path
	o.PersistDefault = false
}

// Validate checks the options and fills in a random token when none was given.
func (o *Options) Validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", o.Port)
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.ConfigPath == "" {
		return fmt.Errorf("configuration path cannot be empty")
	}
	if o.Token == "" {
		token, err := generateToken()
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		o.Token = token
	}
	return nil
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
