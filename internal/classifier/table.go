package classifier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAmbiguousAlias is returned when one normalized alias would resolve to
// more than one category
var ErrAmbiguousAlias = errors.New("alias maps to more than one category")

// Category is a canonical category with its numeric id and spoken aliases
type Category struct {
	Name    string   `yaml:"name" json:"name"`
	ID      int      `yaml:"id" json:"id"`
	Aliases []string `yaml:"aliases" json:"aliases"`
}

// Intent is a canonical intent with its trigger phrases
type Intent struct {
	Name    string   `yaml:"name" json:"name"`
	Phrases []string `yaml:"phrases" json:"phrases"`
}

type aliasEntry struct {
	alias    string
	category int // index into AliasTable.categories
}

type intentEntry struct {
	name    string
	phrases []string
}

// AliasTable is the immutable lookup built from configuration. Every
// normalized alias resolves to exactly one category; the lower-cased canonical
// name is an alias of its own category.
type AliasTable struct {
	categories []Category
	aliases    []aliasEntry
	intents    []intentEntry
}

// Match is a category found in a transcript
type Match struct {
	Category string
	ID       int
	Alias    string
	Score    float64
	Fuzzy    bool
}

// NewAliasTable validates and normalizes the category and intent tables
func NewAliasTable(categories []Category, intents []Intent) (*AliasTable, error) {
	if len(categories) == 0 {
		return nil, errors.New("at least one category is required")
	}
	if len(intents) == 0 {
		return nil, errors.New("at least one intent is required")
	}

	t := &AliasTable{categories: make([]Category, len(categories))}
	owner := make(map[string]int)
	names := make(map[string]bool)

	for i, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
		if names[name] {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		names[name] = true
		t.categories[i] = Category{Name: name, ID: c.ID, Aliases: append([]string(nil), c.Aliases...)}

		for _, raw := range append([]string{name}, c.Aliases...) {
			alias := Normalize(raw)
			if alias == "" {
				return nil, fmt.Errorf("category %q: alias %q is empty after normalization", name, raw)
			}
			if prev, ok := owner[alias]; ok {
				if prev == i {
					continue
				}
				return nil, fmt.Errorf("%w: %q is claimed by %q and %q",
					ErrAmbiguousAlias, alias, t.categories[prev].Name, name)
			}
			owner[alias] = i
			t.aliases = append(t.aliases, aliasEntry{alias: alias, category: i})
		}
	}

	seen := make(map[string]bool)
	for i, in := range intents {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, fmt.Errorf("intent %d has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate intent %q", name)
		}
		seen[name] = true

		entry := intentEntry{name: name}
		for _, raw := range in.Phrases {
			phrase := Normalize(raw)
			if phrase == "" {
				return nil, fmt.Errorf("intent %q: phrase %q is empty after normalization", name, raw)
			}
			entry.phrases = append(entry.phrases, phrase)
		}
		if len(entry.phrases) == 0 {
			return nil, fmt.Errorf("intent %q has no phrases", name)
		}
		t.intents = append(t.intents, entry)
	}

	return t, nil
}

// Categories returns the categories in configuration order
func (t *AliasTable) Categories() []Category {
	return append([]Category(nil), t.categories...)
}

// Aliases returns every normalized alias in table order
func (t *AliasTable) Aliases() []string {
	out := make([]string, len(t.aliases))
	for i, a := range t.aliases {
		out[i] = a.alias
	}
	return out
}

// Resolve returns the category owning a normalized alias
func (t *AliasTable) Resolve(alias string) (Category, bool) {
	for _, a := range t.aliases {
		if a.alias == alias {
			return t.categories[a.category], true
		}
	}
	return Category{}, false
}

// MatchCategories finds the categories named in a normalized transcript.
// Exact alias containment wins; only when nothing is contained are aliases
// scored, and the top three scoring at least threshold are kept. Results are
// in configuration order, one per category.
func (t *AliasTable) MatchCategories(text string, scorer Scorer, threshold float64) []Match {
	found := make(map[int]Match)

	for _, a := range t.aliases {
		if _, ok := found[a.category]; ok {
			continue
		}
		if strings.Contains(text, a.alias) {
			found[a.category] = Match{Alias: a.alias, Score: 100}
		}
	}

	if len(found) == 0 && scorer != nil && text != "" {
		type scored struct {
			entry aliasEntry
			score float64
		}
		candidates := make([]scored, len(t.aliases))
		for i, a := range t.aliases {
			candidates[i] = scored{entry: a, score: scorer(a.alias, text)}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
		if len(candidates) > 3 {
			candidates = candidates[:3]
		}
		for _, c := range candidates {
			if c.score < threshold {
				continue
			}
			if prev, ok := found[c.entry.category]; ok && prev.Score >= c.score {
				continue
			}
			found[c.entry.category] = Match{Alias: c.entry.alias, Score: c.score, Fuzzy: true}
		}
	}

	matches := make([]Match, 0, len(found))
	for i, c := range t.categories {
		m, ok := found[i]
		if !ok {
			continue
		}
		m.Category = c.Name
		m.ID = c.ID
		matches = append(matches, m)
	}
	return matches
}

// MatchIntents returns the intents whose trigger phrases appear in a
// normalized transcript, in configuration order
func (t *AliasTable) MatchIntents(text string) []string {
	var out []string
	for _, in := range t.intents {
		for _, p := range in.phrases {
			if strings.Contains(text, p) {
				out = append(out, in.name)
				break
			}
		}
	}
	return out
}
