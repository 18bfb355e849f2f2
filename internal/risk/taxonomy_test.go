package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTaxonomyLoaded(t *testing.T) {
	require.NotNil(t, DefaultTaxonomy)
	for _, c := range requiredCategories {
		set, ok := DefaultTaxonomy.Set(c)
		require.True(t, ok, "missing %s", c)
		assert.NotEmpty(t, set.Terms)
	}
	refund, _ := DefaultTaxonomy.Set(CategoryRefund)
	assert.Equal(t, TierHigh, refund.Tier)
	assert.NotEmpty(t, DefaultTaxonomy.ForbiddenPhrases())
}

func TestPackageClassifierUsesDefaultTaxonomy(t *testing.T) {
	require.NotNil(t, defaultClassifier.Taxonomy())
	assert.Same(t, DefaultTaxonomy, defaultClassifier.Taxonomy())
	assert.Equal(t, TierHigh, Classify("可以給我打折嗎？").Tier)
}

func TestParseTaxonomyRejectsUnknownTier(t *testing.T) {
	_, err := ParseTaxonomy([]byte(`
version: 1
categories:
  high_risk:
    tier: severe
    terms: [x]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
}

func TestParseTaxonomyRequiresCategories(t *testing.T) {
	_, err := ParseTaxonomy([]byte(`
version: 1
categories:
  high_risk:
    tier: high
    terms: [discount]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing category")
}

func TestMatchFoldsWidthAndCase(t *testing.T) {
	hits := DefaultTaxonomy.Match(CategoryRefund, "I want a ＲＥＦＵＮＤ now")
	assert.Equal(t, []string{"refund"}, hits)

	hits = DefaultTaxonomy.Match(CategoryRefund, "我想 退 款")
	assert.Equal(t, []string{"退款"}, hits)
}

func TestMatchDoesNotCompactASCII(t *testing.T) {
	assert.Empty(t, DefaultTaxonomy.Match(CategoryHighRisk, "we pursue your satisfaction"))
}

func TestMatchForbiddenPhrases(t *testing.T) {
	hits := DefaultTaxonomy.MatchForbiddenPhrases("這個療程保證有效")
	assert.Contains(t, hits, "保證")
	assert.Empty(t, DefaultTaxonomy.MatchForbiddenPhrases("營業時間是早上十點"))
}

func TestTierTextRoundTrip(t *testing.T) {
	b, err := TierMedium.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "medium", string(b))

	var tier Tier
	require.NoError(t, tier.UnmarshalText([]byte("HIGH")))
	assert.Equal(t, TierHigh, tier)
	assert.Error(t, tier.UnmarshalText([]byte("extreme")))
}
