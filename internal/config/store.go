package config

import "sync"

// Store is the configuration shared by the running process. It is loaded
// once at startup and never reloaded behind the caller's back.
type Store struct {
	mu  sync.RWMutex
	cfg *UserConfig
}

func NewStore(cfg *UserConfig) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{cfg: cfg.Clone()}
}

// Get returns a copy of the current configuration.
func (s *Store) Get() *UserConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Shell returns a copy of the shell launch defaults.
func (s *Store) Shell() Shell {
	return s.Get().Shell
}

// Replace swaps in cfg, e.g. after the user saved a new document.
func (s *Store) Replace(cfg *UserConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
}
