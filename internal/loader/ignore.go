package loader

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreList holds glob patterns read from a .rhemaignore file at the
// repository root, one per line, blank lines and "#" comments skipped.
// Matching is against the path relative to the repository root.
type ignoreList struct {
	patterns []string
}

func loadIgnoreList(root string) (*ignoreList, error) {
	f, err := os.Open(filepath.Join(root, ".rhemaignore"))
	if os.IsNotExist(err) {
		return &ignoreList{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &ignoreList{patterns: patterns}, nil
}

// matches reports whether relPath (repository-root-relative, forward-slash
// separated) matches any configured ignore pattern or any of its parent
// directory components.
func (il *ignoreList) matches(relPath string) bool {
	if il == nil || len(il.patterns) == 0 {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	segments := strings.Split(relPath, "/")
	for i := range segments {
		candidate := strings.Join(segments[:i+1], "/")
		for _, pat := range il.patterns {
			if ok, _ := filepath.Match(pat, candidate); ok {
				return true
			}
			if ok, _ := filepath.Match(pat, segments[i]); ok {
				return true
			}
		}
	}
	return false
}
