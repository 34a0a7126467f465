package gateway

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/notify"
	"github.com/scrypster/pinpoint/internal/similarity"
	"github.com/scrypster/pinpoint/pkg/types"
)

//go:embed categories.yaml
var defaultRulesYAML []byte

// Rules decide which POI categories are worth showing on a travel map.
type Rules struct {
	Allow         []string `yaml:"allow"`
	Exclude       []string `yaml:"exclude"`
	BackfillTerms []string `yaml:"backfill_terms"`
}

// ParseRules decodes and normalizes a rules document. An empty allow list
// is an error: it would hide every POI.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("gateway: parse category rules: %w", err)
	}
	r.Allow = normalizeTerms(r.Allow)
	r.Exclude = normalizeTerms(r.Exclude)
	r.BackfillTerms = cleanTerms(r.BackfillTerms)
	if len(r.Allow) == 0 {
		return nil, errors.New("gateway: category rules need at least one allow term")
	}
	return &r, nil
}

// DefaultRules returns the embedded rule set.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(err)
	}
	return r
}

// Accepts reports whether poi belongs on the map. Exclusion wins; a POI
// without categories is rejected.
func (r *Rules) Accepts(poi types.POI) bool {
	allowed := false
	for _, c := range poi.Categories {
		cat := " " + similarity.Normalize(c) + " "
		for _, t := range r.Exclude {
			if strings.Contains(cat, " "+t+" ") {
				return false
			}
		}
		if !allowed {
			for _, t := range r.Allow {
				if strings.Contains(cat, " "+t+" ") {
					allowed = true
					break
				}
			}
		}
	}
	return allowed
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]bool)
	for _, t := range terms {
		n := similarity.Normalize(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// RuleSet holds the active rules: the embedded defaults, or an override
// file that is reloaded when it changes.
type RuleSet struct {
	mu      sync.RWMutex
	rules   *Rules
	path    string
	watcher *notify.FileWatcher
	log     *zap.SugaredLogger
}

// NewRuleSet loads path, or the embedded defaults when path is empty.
func NewRuleSet(path string) (*RuleSet, error) {
	s := &RuleSet{rules: DefaultRules(), path: path, log: logger.GetLogger("gateway")}
	if path != "" {
		if err := s.Reload(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Current returns the active rules.
func (s *RuleSet) Current() *Rules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// Reload re-reads the override file. On error the previous rules stay.
func (s *RuleSet) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("gateway: read category rules: %w", err)
	}
	r, err := ParseRules(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rules = r
	s.mu.Unlock()
	s.log.Infow("category rules loaded", "path", s.path, "allow", len(r.Allow), "exclude", len(r.Exclude))
	return nil
}

// Watch reloads the override file whenever it changes. It is a no-op for
// embedded defaults.
func (s *RuleSet) Watch() error {
	if s.path == "" {
		return nil
	}
	s.watcher = notify.NewFileWatcher(s.path, 0, func() {
		if err := s.Reload(); err != nil {
			s.log.Warnw("keeping previous category rules", "path", s.path, "error", err)
		}
	})
	return s.watcher.Start()
}

// Close stops watching.
func (s *RuleSet) Close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}
