package config

import (
	"errors"
	"fmt"
)

// Kind classifies a configuration failure.
type Kind int

const (
	// KindRead means the file exists but could not be read.
	KindRead Kind = iota + 1
	// KindWrite means the document could not be serialized or written.
	KindWrite
	// KindParse means the file was read but is not a valid document.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// ConfigError is a structured configuration failure. Summary is meant for
// the user, Detail for whoever has to debug it.
type ConfigError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *ConfigError) Summary() string {
	switch e.Kind {
	case KindRead:
		return "Unable to load User Configuration file."
	case KindWrite:
		return "Unable to save User Configuration file."
	case KindParse:
		return "User Configuration file found, but could not be parsed."
	default:
		return "User Configuration error."
	}
}

func (e *ConfigError) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %s: %s", e.Kind, e.Detail())
	}
	return fmt.Sprintf("config: %s %s: %s", e.Kind, e.Path, e.Detail())
}

func (e *ConfigError) Unwrap() error { return e.Err }

// KindOf reports the Kind of err when it is, or wraps, a *ConfigError.
func KindOf(err error) (Kind, bool) {
	var cerr *ConfigError
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return 0, false
}
