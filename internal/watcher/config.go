package watcher

import (
	"path/filepath"
	"time"
)

// Config controls the filesystem observer: which roots to watch, whether
// to descend into subdirectories, whether hidden entries are ignored, and
// how event bursts are coalesced before an invalidation pass runs.
type Config struct {
	Roots         []string
	Recursive     bool
	IncludeHidden bool
	// Patterns restricts watched files to those matching at least one
	// shell glob (matched against the base name), e.g. "*.yaml". A nil
	// or empty slice watches every file.
	Patterns []string
	// Debounce is the quiet window after the last observed event before
	// an invalidation pass runs, coalescing a burst of saves (e.g. an
	// editor writing a temp file then renaming it) into one pass.
	Debounce time.Duration
}

// DefaultConfig debounces 300ms, watches recursively, and skips dotfiles,
// matching the repository-tree conventions the Loader already ignores.
func DefaultConfig(roots ...string) Config {
	return Config{
		Roots:         roots,
		Recursive:     true,
		IncludeHidden: false,
		Patterns:      []string{"*.yaml", "*.yml"},
		Debounce:      300 * time.Millisecond,
	}
}

func (c Config) matchesPattern(base string) bool {
	if len(c.Patterns) == 0 {
		return true
	}
	for _, p := range c.Patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}
