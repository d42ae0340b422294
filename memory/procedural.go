package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	ruleDirPermissions  = 0750
	ruleFilePermissions = 0600

	noRulesYet = "No rules yet."
)

// RuleStore is a bounded, ordered list of behavioral rules mirrored to a
// JSON file. It never holds duplicate rules and never exceeds its maximum;
// capacity eviction drops the oldest rules first.
//
// Every successful mutation rewrites the file atomically (temp file, fsync,
// rename) before returning, so a restart sees either the old or the new
// complete list.
type RuleStore struct {
	path     string
	maxRules int
	reasoner Reasoner
	logger   *slog.Logger

	mu    sync.RWMutex
	rules []string
}

// OpenRuleStore loads the rule file at path. A missing or corrupt file
// yields an empty store; loading never fails.
func OpenRuleStore(path string, maxRules int, reasoner Reasoner, logger *slog.Logger) *RuleStore {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRules < 1 {
		maxRules = DefaultConfig().MaxRules
	}
	s := &RuleStore{
		path:     path,
		maxRules: maxRules,
		reasoner: reasoner,
		logger:   logger.With("component", "procedural"),
	}
	s.rules = s.load()
	return s
}

func (s *RuleStore) load() []string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read rule file, starting empty", "path", s.path, "error", err)
		}
		return []string{}
	}

	var rules []string
	if err := json.Unmarshal(data, &rules); err != nil {
		s.logger.Warn("corrupt rule file, starting empty", "path", s.path, "error", err)
		return []string{}
	}

	rules = dedupe(rules)
	if len(rules) > s.maxRules {
		rules = rules[len(rules)-s.maxRules:]
	}
	s.logger.Debug("loaded rules", "path", s.path, "count", len(rules))
	return rules
}

// AddRule appends rule unless it is blank or already present. When the
// store exceeds its maximum the oldest rules are evicted.
func (s *RuleStore) AddRule(rule string) error {
	if strings.TrimSpace(rule) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r == rule {
			return nil
		}
	}

	next := make([]string, 0, len(s.rules)+1)
	next = append(next, s.rules...)
	next = append(next, rule)
	if len(next) > s.maxRules {
		next = next[len(next)-s.maxRules:]
	}

	if err := s.commit(next); err != nil {
		return err
	}
	s.logger.Info("added rule", "rule", truncateLog(rule, 80), "count", len(next))
	return nil
}

// Update asks the Reasoner to fold new evidence into the rule set and
// replaces the whole set with its answer. A Reasoner failure leaves the
// rules untouched and reports a skipped write.
func (s *RuleStore) Update(ctx context.Context, evidence string) (WriteResult, error) {
	if strings.TrimSpace(evidence) == "" {
		return skipped("empty evidence"), nil
	}

	current, ok := s.RulesText()
	if !ok {
		current = noRulesYet
	}

	updated, err := s.reasoner.UpdateRules(ctx, current, evidence, s.maxRules)
	if err != nil {
		s.logger.Warn("rule update failed, keeping existing rules",
			"kind", failureKind(err), "error", err)
		return skipped("rule update failed"), nil
	}

	next := make([]string, 0, len(updated))
	for _, r := range updated {
		if r = strings.TrimSpace(r); r != "" {
			next = append(next, r)
		}
	}
	next = dedupe(next)
	if len(next) > s.maxRules {
		next = next[:s.maxRules]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(next); err != nil {
		return WriteResult{}, err
	}
	s.logger.Info("updated rules", "count", len(next))
	return WriteResult{Status: StatusStored}, nil
}

// RulesText returns the rules as a numbered list. The boolean is false when
// the store is empty.
func (s *RuleStore) RulesText() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rules) == 0 {
		return "", false
	}
	lines := make([]string, len(s.rules))
	for i, r := range s.rules {
		lines[i] = fmt.Sprintf("%d. %s", i+1, r)
	}
	return strings.Join(lines, "\n"), true
}

// Rules returns a copy of the current rules, oldest first.
func (s *RuleStore) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// MaxRules returns the configured capacity.
func (s *RuleStore) MaxRules() int {
	return s.maxRules
}

// commit persists next and then makes it current. Caller holds s.mu.
func (s *RuleStore) commit(next []string) error {
	if err := writeRuleFile(s.path, next); err != nil {
		return err
	}
	s.rules = next
	return nil
}

// writeRuleFile writes rules to path atomically.
func writeRuleFile(path string, rules []string) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, ruleDirPermissions); err != nil {
		return fmt.Errorf("create rule directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp rule file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp rule file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp rule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp rule file: %w", err)
	}
	if err := os.Chmod(tmpPath, ruleFilePermissions); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp rule file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename rule file: %w", err)
	}
	return nil
}

// dedupe drops repeated strings, keeping the first occurrence.
func dedupe(rules []string) []string {
	seen := make(map[string]struct{}, len(rules))
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
