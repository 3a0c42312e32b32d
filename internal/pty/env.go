package pty

import (
	"runtime"
	"sort"
	"strings"
)

// overlayEnv returns base with overrides applied. Overridden keys are
// removed from base first; Windows compares keys case-insensitively.
func overlayEnv(base []string, overrides map[string]string) []string {
	norm := func(k string) string {
		if runtime.GOOS == "windows" {
			return strings.ToUpper(k)
		}
		return k
	}

	overridden := make(map[string]bool, len(overrides))
	for k := range overrides {
		overridden[norm(k)] = true
	}

	env := make([]string, 0, len(base)+len(overrides)+1)
	hasTerm := false
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		k := norm(name)
		if overridden[k] {
			continue
		}
		if k == norm("TERM") {
			hasTerm = true
		}
		env = append(env, kv)
	}
	if !hasTerm && !overridden[norm("TERM")] && runtime.GOOS != "windows" {
		env = append(env, "TERM=xterm-256color")
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
