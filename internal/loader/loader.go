// Package loader implements the Repository Loader (component A): it walks
// a repository tree, discovers scope directories, parses their YAML
// resource files into strongly typed records, and computes a stable
// checksum per file for the Cache Manager and Watcher to key off of.
package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rhema-dev/rhema/internal/rhema"
)

const scopeDefinitionFile = "scope.yaml"

var resourceFiles = map[rhema.ResourceKind]string{
	rhema.KindKnowledge:   "knowledge.yaml",
	rhema.KindTodos:       "todos.yaml",
	rhema.KindDecisions:   "decisions.yaml",
	rhema.KindPatterns:    "patterns.yaml",
	rhema.KindConventions: "conventions.yaml",
}

const lockFile = "rhema.lock"

// ScopeData is one scope and the resource records loaded for it.
type ScopeData struct {
	Scope       rhema.Scope
	Knowledge   []rhema.Knowledge
	Todos       []rhema.Todo
	Decisions   []rhema.Decision
	Patterns    []rhema.Pattern
	Conventions []rhema.Convention

	// FileChecksums maps each loaded file's name (relative to the scope
	// directory) to its SHA-256 content checksum. The Cache Manager and
	// Watcher key fingerprints and change detection off these.
	FileChecksums map[string]string
}

// Result is a candidate Context Store snapshot produced by a Load, awaiting
// admission by the Validator.
type Result struct {
	Scopes   map[string]*ScopeData
	Lock     *rhema.Lock
	Errors   []*LoadError
	Degraded []string // scope paths loaded with one or more ParseError or FileNotFound errors
}

// Loader discovers and parses a repository's scopes.
type Loader struct {
	root string
}

// New returns a Loader rooted at root, which must exist.
func New(root string) (*Loader, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %q is not a directory", root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Loader{root: abs}, nil
}

// Root returns the repository root the Loader was constructed with.
func (l *Loader) Root() string { return l.root }

// Load walks the repository tree and parses every recognized scope.
// ParseError on an individual file does not abort the rest of the scope;
// the scope is retained with Degraded=true and its error recorded.
func (l *Loader) Load() (*Result, error) {
	ignore, err := loadIgnoreList(l.root)
	if err != nil {
		return nil, fmt.Errorf("load ignore list: %w", err)
	}

	result := &Result{Scopes: make(map[string]*ScopeData)}

	var scopeDirs []string
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(l.root, path)
		if relErr != nil {
			return relErr
		}
		if rel != "." && ignore.matches(rel) {
			return filepath.SkipDir
		}
		if rel != "." && filepath.Base(rel)[0] == '.' {
			return filepath.SkipDir
		}
		if _, statErr := os.Stat(filepath.Join(path, scopeDefinitionFile)); statErr == nil {
			scopeDirs = append(scopeDirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}
	sort.Strings(scopeDirs)

	for _, dir := range scopeDirs {
		relPath, err := filepath.Rel(l.root, dir)
		if err != nil {
			return nil, err
		}
		relPath = filepath.ToSlash(relPath)

		data, loadErrs, err := l.loadScope(relPath, dir)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Scopes[relPath] = data
		if len(loadErrs) > 0 {
			data.Scope.Degraded = true
			result.Degraded = append(result.Degraded, relPath)
			result.Errors = append(result.Errors, loadErrs...)
		}
	}

	if lockPath := filepath.Join(l.root, lockFile); fileExists(lockPath) {
		lock, err := parseLock(lockPath)
		if err != nil {
			result.Errors = append(result.Errors, parseError("", lockFile, err.Error()))
		} else {
			result.Lock = lock
		}
	}

	return result, nil
}

// loadScope parses a single scope's definition and all present resource
// files. A missing scope.yaml or a definition that fails to unmarshal is
// InvalidScopeDefinition and aborts the whole scope; missing resource files
// are skipped (an empty, not degraded, resource list); resource files that
// fail to parse are ParseError and are collected rather than aborting.
func (l *Loader) loadScope(relPath, dir string) (*ScopeData, []*LoadError, error) {
	defPath := filepath.Join(dir, scopeDefinitionFile)
	raw, err := os.ReadFile(defPath)
	if err != nil {
		return nil, nil, invalidScopeDefinition(relPath, err.Error())
	}

	var scope rhema.Scope
	if err := yaml.Unmarshal(raw, &scope); err != nil {
		return nil, nil, invalidScopeDefinition(relPath, err.Error())
	}
	scope.Path = relPath

	checksum, err := checksumFile(defPath)
	if err != nil {
		return nil, nil, invalidScopeDefinition(relPath, err.Error())
	}
	scope.Checksum = checksum
	scope.Files = []string{scopeDefinitionFile}

	data := &ScopeData{Scope: scope, FileChecksums: map[string]string{scopeDefinitionFile: checksum}}
	var loadErrs []*LoadError

	kinds := []rhema.ResourceKind{rhema.KindKnowledge, rhema.KindTodos, rhema.KindDecisions, rhema.KindPatterns, rhema.KindConventions}
	for _, kind := range kinds {
		filename := resourceFiles[kind]
		path := filepath.Join(dir, filename)
		if !fileExists(path) {
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			loadErrs = append(loadErrs, fileNotFound(relPath, filename, err.Error()))
			continue
		}

		if err := unmarshalResource(kind, raw, data); err != nil {
			loadErrs = append(loadErrs, parseError(relPath, filename, err.Error()))
			continue
		}

		sum := sha256.Sum256(raw)
		data.FileChecksums[filename] = hex.EncodeToString(sum[:])
		data.Scope.Files = append(data.Scope.Files, filename)
	}

	return data, loadErrs, nil
}

func unmarshalResource(kind rhema.ResourceKind, raw []byte, data *ScopeData) error {
	switch kind {
	case rhema.KindKnowledge:
		var records []rhema.Knowledge
		if err := yaml.Unmarshal(raw, &records); err != nil {
			return err
		}
		data.Knowledge = records
	case rhema.KindTodos:
		var records []rhema.Todo
		if err := yaml.Unmarshal(raw, &records); err != nil {
			return err
		}
		data.Todos = records
	case rhema.KindDecisions:
		var records []rhema.Decision
		if err := yaml.Unmarshal(raw, &records); err != nil {
			return err
		}
		data.Decisions = records
	case rhema.KindPatterns:
		var records []rhema.Pattern
		if err := yaml.Unmarshal(raw, &records); err != nil {
			return err
		}
		data.Patterns = records
	case rhema.KindConventions:
		var records []rhema.Convention
		if err := yaml.Unmarshal(raw, &records); err != nil {
			return err
		}
		data.Conventions = records
	}
	return nil
}

func parseLock(path string) (*rhema.Lock, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock rhema.Lock
	if err := yaml.Unmarshal(raw, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ResourceKindForFile maps a resource file's base name to its kind, for
// callers (the Watcher) that need to classify a filesystem event without
// re-parsing it. ok is false for scope.yaml, rhema.lock, or any other
// file the Loader doesn't treat as a resource collection.
func ResourceKindForFile(base string) (kind rhema.ResourceKind, ok bool) {
	for k, name := range resourceFiles {
		if name == base {
			return k, true
		}
	}
	return "", false
}

// IsScopeDefinitionFile reports whether base is the scope definition file
// (scope.yaml), the file the Watcher uses to find a path's owning scope.
func IsScopeDefinitionFile(base string) bool {
	return base == scopeDefinitionFile
}

// checksumFile computes a stable SHA-256 content checksum, hex-encoded.
func checksumFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
