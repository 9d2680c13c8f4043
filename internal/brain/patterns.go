package brain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xcha05/prime/internal/types"
)

// PatternStore is the fast path ahead of the model loop: a learned trigger
// phrase mapped straight to a target action, bypassing a model round
// entirely. Grounded on original_source/prime/app/core/patterns.py's
// PatternLearner (match-by-regex, longest-trigger/most-used tie-breaking,
// promote-after-repeated-correction), persisted with the same
// temp-file-then-rename idiom as the scheduler and workspace stores.
type PatternStore struct {
	mu       sync.Mutex
	path     string
	patterns map[string]*compiledPattern

	autoPromote    bool
	corrections    []correction
	promoteAfter   int
}

type compiledPattern struct {
	pattern *types.LearnedPattern
	re      *regexp.Regexp
}

type correction struct {
	original  string
	corrected string
	at        time.Time
}

// NewPatternStore loads path (if present) and returns a ready PatternStore.
// autoPromote gates whether repeated corrections are promoted into new
// LearnedPatterns automatically; it defaults to false per SPEC_FULL.md
// §4.6's resolution of the pattern-auto-promotion open question — a user
// must opt in before the loop starts rewriting itself.
func NewPatternStore(path string, autoPromote bool) (*PatternStore, error) {
	s := &PatternStore{
		path:         path,
		patterns:     make(map[string]*compiledPattern),
		autoPromote:  autoPromote,
		promoteAfter: 2,
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("brain: read pattern store: %w", err)
	}
	var stored []types.LearnedPattern
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("brain: decode pattern store: %w", err)
	}
	for i := range stored {
		if err := s.addLocked(&stored[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PatternStore) addLocked(p *types.LearnedPattern) error {
	expr := p.MatchPattern
	if expr == "" {
		expr = triggerRegex(p.Trigger)
		p.MatchPattern = expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("brain: compile pattern %q: %w", p.Trigger, err)
	}
	s.patterns[p.Trigger] = &compiledPattern{pattern: p, re: re}
	return nil
}

// triggerRegex builds a case-insensitive word-boundary regex from a literal
// trigger phrase, same escaping approach as patterns.py's _create_regex.
func triggerRegex(trigger string) string {
	escaped := regexp.QuoteMeta(strings.ToLower(trigger))
	flexible := strings.ReplaceAll(escaped, `\ `, `\s+`)
	return `(?i)\b` + flexible + `\b`
}

// Match returns the best match for text: the longest trigger phrase among
// all matches, breaking ties by usage count, same ordering as
// PatternLearner.match.
func (s *PatternStore) Match(text string) (*types.LearnedPattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lowered := strings.ToLower(strings.TrimSpace(text))
	var candidates []*compiledPattern
	for _, cp := range s.patterns {
		if cp.re.MatchString(lowered) {
			candidates = append(candidates, cp)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := len(candidates[i].pattern.Trigger), len(candidates[j].pattern.Trigger)
		if ti != tj {
			return ti > tj
		}
		return candidates[i].pattern.UsageCount > candidates[j].pattern.UsageCount
	})
	return candidates[0].pattern, true
}

// RecordUse bumps usage accounting for trigger after the loop has acted on
// it, then persists.
func (s *PatternStore) RecordUse(trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.patterns[trigger]
	if !ok {
		return fmt.Errorf("brain: unknown pattern %q", trigger)
	}
	cp.pattern.UsageCount++
	cp.pattern.LastUsed = time.Now()
	return s.saveLocked()
}

// Learn adds a new manually-specified pattern.
func (s *PatternStore) Learn(p types.LearnedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = time.Now()
	if p.Source == "" {
		p.Source = "manual"
	}
	if err := s.addLocked(&p); err != nil {
		return err
	}
	return s.saveLocked()
}

// RecordCorrection tracks a user correcting original to corrected. Once the
// same correction has been seen promoteAfter times or more, and
// autoPromote is enabled, it is promoted into a new shell-action
// LearnedPattern — mirroring learn_from_correction's frequency-mining
// behavior.
func (s *PatternStore) RecordCorrection(original, corrected string) (*types.LearnedPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corrections = append(s.corrections, correction{original: original, corrected: corrected, at: time.Now()})

	if !s.autoPromote {
		return nil, nil
	}

	count := 0
	for _, c := range s.corrections {
		if strings.EqualFold(c.original, original) {
			count++
		}
	}
	if count < s.promoteAfter {
		return nil, nil
	}

	promoted := types.LearnedPattern{
		Trigger:      original,
		TargetAction: "execute_shell",
		Parameters:   map[string]any{"command": corrected},
		Source:       "auto-promoted",
		CreatedAt:    time.Now(),
	}
	if err := s.addLocked(&promoted); err != nil {
		return nil, err
	}
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return &promoted, nil
}

// List returns every pattern ordered by usage count descending, then
// trigger, matching patterns.py's list_patterns ordering.
func (s *PatternStore) List() []types.LearnedPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LearnedPattern, 0, len(s.patterns))
	for _, cp := range s.patterns {
		out = append(out, *cp.pattern)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Trigger < out[j].Trigger
	})
	return out
}

func (s *PatternStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	out := make([]types.LearnedPattern, 0, len(s.patterns))
	for _, cp := range s.patterns {
		out = append(out, *cp.pattern)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("brain: marshal pattern store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("brain: create pattern store dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("brain: write pattern store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("brain: rename pattern store: %w", err)
	}
	return nil
}
