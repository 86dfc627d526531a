package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// MaxFileSize bounds rule files read from disk.
const MaxFileSize = 1024 * 1024

//go:embed default_rules.yaml
var defaultRulesYAML []byte

var ErrNotFound = errors.New("rule not found")

// Rule is a named block of guidance the model can fetch.
type Rule struct {
	Name        string `yaml:"name" json:"rule_name"`
	Description string `yaml:"description" json:"description"`
	Content     string `yaml:"content" json:"content"`
}

type file struct {
	Rules []Rule `yaml:"rules"`
}

// Store serves rules by name. Rules from an override file replace embedded
// rules of the same name.
type Store struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// Load reads the embedded defaults and, when path is non-empty, merges the
// rules in that file on top.
func Load(path string) (*Store, error) {
	s := &Store{rules: map[string]Rule{}}
	if err := s.merge(defaultRulesYAML); err != nil {
		return nil, fmt.Errorf("parse embedded rules: %w", err)
	}
	if path == "" {
		return s, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rules file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("rules file %s exceeds %d bytes", path, MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	if err := s.merge(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) merge(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range f.Rules {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			return fmt.Errorf("rule %d has no name", i)
		}
		s.rules[r.Name] = r
	}
	return nil
}

// Get returns the rule called name.
func (s *Store) Get(name string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[strings.TrimSpace(name)]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r, nil
}

// Names lists rule names alphabetically.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.rules))
	for name := range s.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
