package marksheet

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"
)

// Strategy names
const (
	StrategyName     = "name"
	StrategyID       = "id"
	StrategyFuzzy    = "fuzzy"
	StrategyIndirect = "indirect"
)

const (
	maxSuggestions  = 3
	suggestionRatio = 0.6
)

// Slot is one subject column of a marksheet template.
type Slot struct {
	ID       string  `json:"id"`
	Name     string  `json:"name" validate:"required,notblank"`
	MaxMarks float64 `json:"maxMarks" validate:"gte=0"`
}

// ResolvedSlot pairs a template slot with the holder's aggregated score.
// Score is nil when no strategy resolved the slot, which is not the same as a zero score.
type ResolvedSlot struct {
	Slot
	Score       *Score   `json:"score"`
	Strategy    string   `json:"strategy,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (rs ResolvedSlot) Resolved() bool {
	return rs.Score != nil
}

// Strategy resolves a slot against one holder's aggregated scores, returning nil on a miss.
type Strategy struct {
	Name    string
	Resolve func(slot Slot, scores HolderScores) *Score
}

// Matcher resolves template slots to aggregated scores by trying its strategies in order.
type Matcher struct {
	strategies []Strategy
	nameToID   map[string]string
}

// NewMatcher returns a matcher trying, in order: exact name, slot id, fuzzy name and the
// indirect name → category id lookup through `nameToID`.
func NewMatcher(nameToID map[string]string) *Matcher {
	m := &Matcher{nameToID: make(map[string]string, len(nameToID))}
	for name, id := range nameToID {
		if key := nameKey(name); key != "" {
			m.nameToID[key] = id
		}
	}
	m.strategies = []Strategy{
		{Name: StrategyName, Resolve: byName},
		{Name: StrategyID, Resolve: byID},
		{Name: StrategyFuzzy, Resolve: byFuzzyName},
		{Name: StrategyIndirect, Resolve: m.byIndirectID},
	}
	return m
}

// Strategies returns the names of the strategies in the order they are tried.
func (m *Matcher) Strategies() []string {
	names := make([]string, len(m.strategies))
	for i, s := range m.strategies {
		names[i] = s.Name
	}
	return names
}

// Resolve returns one entry per slot, in the order of `slots`.
func (m *Matcher) Resolve(slots []Slot, holderID string, byHolder map[string]HolderScores) []ResolvedSlot {
	scores, ok := byHolder[holderID]
	if !ok {
		scores = newHolderScores()
	}

	resolved := make([]ResolvedSlot, len(slots))
	for i, slot := range slots {
		rs := ResolvedSlot{Slot: slot}
		for _, strategy := range m.strategies {
			if score := strategy.Resolve(slot, scores); score != nil {
				s := *score
				rs.Score = &s
				rs.Strategy = strategy.Name
				break
			}
		}
		if rs.Score == nil {
			rs.Suggestions = suggest(slot.Name, scores)
		}
		resolved[i] = rs
	}
	return resolved
}

func byName(slot Slot, scores HolderScores) *Score {
	key := nameKey(slot.Name)
	if key == "" {
		return nil
	}
	return scores.ByName[key]
}

func byID(slot Slot, scores HolderScores) *Score {
	id := strings.TrimSpace(slot.ID)
	if id == "" {
		return nil
	}
	return scores.ByID[id]
}

func byFuzzyName(slot Slot, scores HolderScores) *Score {
	want := fold(slot.Name)
	if want == "" {
		return nil
	}
	for _, name := range scores.names() {
		got := fold(name)
		if got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return scores.ByName[name]
		}
	}
	return nil
}

func (m *Matcher) byIndirectID(slot Slot, scores HolderScores) *Score {
	id, ok := m.nameToID[nameKey(slot.Name)]
	if !ok || id == "" {
		return nil
	}
	return scores.ByID[id]
}

// fold lower-cases `s` and strips its diacritics.
func fold(s string) string {
	s = norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// suggest lists the holder's category names closest to `name`, best first.
func suggest(name string, scores HolderScores) []string {
	want := fold(name)
	if want == "" {
		return nil
	}

	type candidate struct {
		name  string
		ratio float64
	}
	var candidates []candidate
	for _, key := range scores.names() {
		score := scores.ByName[key]
		ratio := difflib.NewMatcher(strings.Split(want, ""), strings.Split(fold(key), "")).Ratio()
		if ratio >= suggestionRatio {
			candidates = append(candidates, candidate{name: score.CategoryName, ratio: ratio})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].ratio > candidates[j].ratio })

	var suggestions []string
	for _, c := range candidates {
		if len(suggestions) == maxSuggestions {
			break
		}
		suggestions = append(suggestions, c.name)
	}
	return suggestions
}
