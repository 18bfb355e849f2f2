package risk

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomyYAML []byte

// Category names one term set of the taxonomy.
type Category string

const (
	CategoryHighRisk        Category = "high_risk"
	CategoryMediumRisk      Category = "medium_risk"
	CategoryForbiddenTopic  Category = "forbidden_topic"
	CategoryInternalLeak    Category = "internal_leak"
	CategoryRefund          Category = "refund"
	CategoryOrderReference  Category = "order_reference"
	CategoryPromptInjection Category = "prompt_injection"
)

var requiredCategories = []Category{
	CategoryHighRisk,
	CategoryMediumRisk,
	CategoryForbiddenTopic,
	CategoryInternalLeak,
	CategoryRefund,
	CategoryOrderReference,
}

// TermSet is a compiled category: folded terms plus the tier a hit implies.
type TermSet struct {
	Category    Category
	Tier        Tier
	Description string
	Terms       []string
}

// Taxonomy is the single source of truth for every keyword list in the
// pipeline. Input classification and output filtering both read from it.
type Taxonomy struct {
	Version          int
	sets             map[Category]TermSet
	forbiddenPhrases []string
}

type taxonomyFile struct {
	Version    int                         `yaml:"version"`
	Categories map[string]taxonomyCategory `yaml:"categories"`
	Output     struct {
		ForbiddenPhrases []string `yaml:"forbidden_phrases"`
	} `yaml:"output"`
}

type taxonomyCategory struct {
	Tier        string   `yaml:"tier"`
	Description string   `yaml:"description"`
	Terms       []string `yaml:"terms"`
}

// DefaultTaxonomy is parsed from the embedded taxonomy.yaml. Package-level
// initialization orders it ahead of every variable that reads it.
var DefaultTaxonomy = mustParseTaxonomy(defaultTaxonomyYAML)

func mustParseTaxonomy(data []byte) *Taxonomy {
	tax, err := ParseTaxonomy(data)
	if err != nil {
		panic(fmt.Sprintf("risk: loading embedded taxonomy: %v", err))
	}
	return tax
}

// ParseTaxonomy decodes and validates a taxonomy document.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("risk: parse taxonomy: %w", err)
	}

	tax := &Taxonomy{
		Version: file.Version,
		sets:    make(map[Category]TermSet, len(file.Categories)),
	}
	for name, raw := range file.Categories {
		tier, err := ParseTier(raw.Tier)
		if err != nil {
			return nil, fmt.Errorf("risk: category %s: %w", name, err)
		}
		set := TermSet{
			Category:    Category(name),
			Tier:        tier,
			Description: raw.Description,
			Terms:       foldTerms(raw.Terms),
		}
		if len(set.Terms) == 0 {
			return nil, fmt.Errorf("risk: category %s has no terms", name)
		}
		tax.sets[set.Category] = set
	}
	for _, required := range requiredCategories {
		if _, ok := tax.sets[required]; !ok {
			return nil, fmt.Errorf("risk: taxonomy missing category %s", required)
		}
	}
	tax.forbiddenPhrases = foldTerms(file.Output.ForbiddenPhrases)
	return tax, nil
}

// Set returns the term set for a category.
func (t *Taxonomy) Set(c Category) (TermSet, bool) {
	set, ok := t.sets[c]
	return set, ok
}

// Categories lists the configured categories in a stable order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, 0, len(t.sets))
	for c := range t.sets {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Match returns the terms of a category found in text.
func (t *Taxonomy) Match(c Category, text string) []string {
	set, ok := t.sets[c]
	if !ok {
		return nil
	}
	return matchTerms(set.Terms, normalize(text))
}

// ForbiddenPhrases returns phrases that must never reach a customer in a reply.
func (t *Taxonomy) ForbiddenPhrases() []string {
	return append([]string(nil), t.forbiddenPhrases...)
}

// MatchForbiddenPhrases returns the forbidden output phrases found in text.
func (t *Taxonomy) MatchForbiddenPhrases(text string) []string {
	return matchTerms(t.forbiddenPhrases, normalize(text))
}

func foldTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		folded := foldText(term)
		if folded == "" {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	return out
}

func matchTerms(terms []string, n normalized) []string {
	var hits []string
	for _, term := range terms {
		if strings.Contains(n.folded, term) {
			hits = append(hits, term)
			continue
		}
		// Spaced-out CJK ("退 款") is still a hit; ASCII terms keep word spacing.
		if !isASCII(term) && strings.Contains(n.compact, stripSpace(term)) {
			hits = append(hits, term)
		}
	}
	return hits
}
