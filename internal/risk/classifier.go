// Package risk classifies inbound customer messages into risk tiers using a
// single keyword taxonomy.
package risk

import (
	"regexp"
	"sort"
	"strings"
)

// Assessment is the derived, never persisted, risk view of one message.
type Assessment struct {
	Tier Tier
	// MatchedTerms is the sorted, de-duplicated set of terms that fired.
	MatchedTerms []string
	// Categories lists every category with at least one hit.
	Categories []Category
	// IsStructuredRefund marks a refund request that is routine business
	// rather than a hard stop.
	IsStructuredRefund bool
	// HasOrderReference is set only when an order identifier was extracted;
	// the bare word "訂單" is not a reference.
	HasOrderReference bool
	OrderNumber       string
	Injection         InjectionResult
}

// HasCategory reports whether any term of c matched.
func (a Assessment) HasCategory(c Category) bool {
	for _, got := range a.Categories {
		if got == c {
			return true
		}
	}
	return false
}

// PrimaryCategory names the category that best explains the tier, used to
// label drafts for reviewers.
func (a Assessment) PrimaryCategory() string {
	order := []Category{
		CategoryPromptInjection,
		CategoryInternalLeak,
		CategoryForbiddenTopic,
		CategoryRefund,
		CategoryHighRisk,
		CategoryMediumRisk,
	}
	for _, c := range order {
		if a.HasCategory(c) {
			return string(c)
		}
	}
	return "general"
}

var (
	labeledOrderNumber = regexp.MustCompile(`(?i)(?:訂單|單號|訂購|order)\s*(?:編號|號碼|號|no\.?|number|id|#)?\s*[:：#]?\s*([a-z0-9][a-z0-9-]{3,})`)
	digitRun           = regexp.MustCompile(`[0-9]+`)
)

const (
	minBareOrderDigits = 5
	maxBareOrderDigits = 12
)

// Classifier evaluates messages against a taxonomy.
type Classifier struct {
	tax *Taxonomy
}

// NewClassifier builds a classifier; a nil taxonomy uses DefaultTaxonomy.
func NewClassifier(tax *Taxonomy) *Classifier {
	if tax == nil {
		tax = DefaultTaxonomy
	}
	return &Classifier{tax: tax}
}

// Taxonomy exposes the term source so output filtering reads the same lists.
func (c *Classifier) Taxonomy() *Taxonomy {
	return c.tax
}

// Classify is pure and synchronous. Any hit in high_risk, forbidden_topic,
// internal_leak, refund or a blocked injection scan yields TierHigh; otherwise
// a medium_risk hit yields TierMedium; otherwise TierLow.
func (c *Classifier) Classify(text string) Assessment {
	var a Assessment
	if strings.TrimSpace(text) == "" {
		return a
	}

	n := normalize(text)
	matched := make(map[string]struct{})
	nonRefundHigh := false

	for _, category := range c.tax.Categories() {
		set, _ := c.tax.Set(category)
		hits := matchTerms(set.Terms, n)
		if len(hits) == 0 {
			continue
		}
		a.Categories = append(a.Categories, category)
		for _, h := range hits {
			matched[h] = struct{}{}
		}
		a.Tier = maxTier(a.Tier, set.Tier)
		if set.Tier == TierHigh && category != CategoryRefund {
			nonRefundHigh = true
		}
	}

	a.Injection = ScanInjection(text)
	if a.Injection.Blocked {
		a.Categories = append(a.Categories, CategoryPromptInjection)
		for _, reason := range a.Injection.Reasons {
			matched["prompt_injection:"+reason] = struct{}{}
		}
		a.Tier = TierHigh
		nonRefundHigh = true
	}

	a.OrderNumber = extractOrderNumber(n.folded)
	a.HasOrderReference = a.OrderNumber != ""

	refund := a.HasCategory(CategoryRefund)
	a.IsStructuredRefund = refund && (a.HasOrderReference || !nonRefundHigh)

	a.MatchedTerms = make([]string, 0, len(matched))
	for term := range matched {
		a.MatchedTerms = append(a.MatchedTerms, term)
	}
	sort.Strings(a.MatchedTerms)
	return a
}

var defaultClassifier = NewClassifier(nil)

// Classify runs the default classifier.
func Classify(text string) Assessment {
	return defaultClassifier.Classify(text)
}

// extractOrderNumber prefers an identifier that follows an order label.
// Unlabeled digit runs count only when they cannot be a phone number.
func extractOrderNumber(folded string) string {
	for _, m := range labeledOrderNumber.FindAllStringSubmatch(folded, -1) {
		if len(m) == 2 && strings.ContainsAny(m[1], "0123456789") {
			return m[1]
		}
	}
	for _, run := range digitRun.FindAllString(folded, -1) {
		if len(run) < minBareOrderDigits || len(run) > maxBareOrderDigits {
			continue
		}
		if looksLikePhoneNumber(run) {
			continue
		}
		return run
	}
	return ""
}

// looksLikePhoneNumber matches Taiwanese mobile (09xxxxxxxx), landline
// (0x with 9 or 10 digits) and +886 international shapes.
func looksLikePhoneNumber(digits string) bool {
	switch {
	case strings.HasPrefix(digits, "886") && len(digits) >= 11:
		return true
	case strings.HasPrefix(digits, "0") && (len(digits) == 9 || len(digits) == 10):
		return true
	}
	return false
}
