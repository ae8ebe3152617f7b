// Package sanctions adapts the teacher's compliance.SanctionsScreener
// (exact + fuzzy name matching, Levenshtein-distance scored) to
// validation.SanctionsScreener, fronted by a static in-memory list instead
// of database/sql — persistence backends are a Non-goal.
package sanctions

import (
	"context"
	"strings"
	"sync"

	"github.com/deltran/coordinator/internal/validation"
)

// Entry is one sanctioned entity's names and aliases to screen against.
type Entry struct {
	ID      string
	Names   []string
	Aliases []string
	Source  string
}

// Screener implements validation.SanctionsScreener over an in-memory list.
type Screener struct {
	mu             sync.RWMutex
	entries        []Entry
	fuzzyThreshold int
}

// New builds a Screener over entries. fuzzyThreshold is the maximum
// Levenshtein distance still counted as a match; 0 disables fuzzy matching
// (exact and substring matches only).
func New(entries []Entry, fuzzyThreshold int) *Screener {
	return &Screener{entries: entries, fuzzyThreshold: fuzzyThreshold}
}

// Screen reports every name/alias in the list that matches name exactly, as
// a substring, or within the configured Levenshtein distance.
func (s *Screener) Screen(ctx context.Context, name string) ([]validation.SanctionsMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := normalize(name)
	if query == "" {
		return nil, nil
	}

	var matches []validation.SanctionsMatch
	for _, entry := range s.entries {
		for _, candidate := range append(append([]string{}, entry.Names...), entry.Aliases...) {
			if m, ok := s.matchOne(query, candidate); ok {
				m.EntityName = candidate
				m.ListName = entry.Source
				matches = append(matches, m)
			}
		}
	}
	return matches, nil
}

func (s *Screener) matchOne(query, candidate string) (validation.SanctionsMatch, bool) {
	normalized := normalize(candidate)
	if normalized == "" {
		return validation.SanctionsMatch{}, false
	}

	if query == normalized {
		return validation.SanctionsMatch{Score: 1.0}, true
	}
	if strings.Contains(query, normalized) || strings.Contains(normalized, query) {
		return validation.SanctionsMatch{Score: 0.9}, true
	}
	if s.fuzzyThreshold <= 0 {
		return validation.SanctionsMatch{}, false
	}
	distance := levenshteinDistance(query, normalized)
	if distance > s.fuzzyThreshold {
		return validation.SanctionsMatch{}, false
	}
	longest := len(query)
	if len(normalized) > longest {
		longest = len(normalized)
	}
	score := 1.0 - (float64(distance) / float64(longest))
	return validation.SanctionsMatch{Score: score}, true
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// levenshteinDistance is the classic dynamic-programming edit distance
// between a and b, ported from the teacher's sanctions-matching helper.
func levenshteinDistance(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = minInt(minInt(del, ins), sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
