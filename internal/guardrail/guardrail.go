// Package guardrail is the post-generation firewall: an ordered table of
// checks where the first match replaces the reply with a safe fallback.
package guardrail

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/guarded-reply/internal/risk"
)

// Reason codes recorded on drafts, logs and metrics.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonInternalLeak          Reason = "internal_leak"
	ReasonAmountPromise         Reason = "amount_promise"
	ReasonProfessionalAdvice    Reason = "professional_advice"
	ReasonInappropriateLanguage Reason = "inappropriate_language"
	ReasonLengthAnomaly         Reason = "length_anomaly"
	ReasonEmptyResponse         Reason = "empty_response"
	ReasonForbiddenPhrase       Reason = "forbidden_phrase"
)

const (
	// HardCeiling is the rune count above which a reply is treated as anomalous.
	HardCeiling = 2000
	// minMeaningfulRunes: anything shorter after trimming is near-empty.
	minMeaningfulRunes = 2
	ellipsis           = "…"
)

// Fallback messages delivered in place of a blocked reply.
const (
	FallbackSystemError  = "抱歉，系統暫時無法處理您的問題，請稍後再試，或等待客服人員與您聯繫。"
	FallbackSpecialist   = "關於金額、優惠或退款的細節，需要由專人為您確認，我們會盡快回覆您。"
	FallbackProfessional = "這個問題涉及專業判斷，建議您諮詢相關的專業人士，我們也會請專人協助您。"
	FallbackRestart      = "抱歉，剛才的回覆不太恰當，讓我們重新開始。請問有什麼可以為您服務的嗎？"
	FallbackSummarize    = "讓我先為您簡單整理重點：這個問題內容較多，我們會請專人提供完整說明。"
	FallbackRetry        = "抱歉，剛才沒有產生回覆，請您再傳送一次訊息。"
	FallbackNeedsReview  = "這個問題需要專人處理，我們會盡快與您聯繫。"
)

// Result is the guarded view of one generated reply.
type Result struct {
	RawText   string
	FinalText string
	Triggered bool
	Reason    Reason
}

type rule struct {
	reason   Reason
	matches  func(text string) bool
	fallback string
}

// Guard evaluates replies against its rule table.
type Guard struct {
	tax   *risk.Taxonomy
	rules []rule
}

// New builds a guard whose internal-leak and forbidden-phrase lists come from
// tax. A nil taxonomy uses risk.DefaultTaxonomy.
func New(tax *risk.Taxonomy) *Guard {
	if tax == nil {
		tax = risk.DefaultTaxonomy
	}
	g := &Guard{tax: tax}
	g.rules = []rule{
		{ReasonInternalLeak, g.leaksInternals, FallbackSystemError},
		{ReasonAmountPromise, anyPattern(amountPromisePatterns), FallbackSpecialist},
		{ReasonProfessionalAdvice, anyPattern(professionalAdvicePatterns), FallbackProfessional},
		{ReasonInappropriateLanguage, anyPattern(inappropriatePatterns), FallbackRestart},
		{ReasonLengthAnomaly, func(text string) bool { return utf8.RuneCountInString(text) > HardCeiling }, FallbackSummarize},
		{ReasonEmptyResponse, func(text string) bool { return utf8.RuneCountInString(strings.TrimSpace(text)) < minMeaningfulRunes }, FallbackRetry},
	}
	return g
}

// Apply runs the firewall, then the forbidden-phrase scan, then truncates
// whatever will be delivered to maxLen runes.
func (g *Guard) Apply(text string, maxLen int) Result {
	res := Result{RawText: text}

	for _, r := range g.rules {
		if r.matches(text) {
			res.Triggered = true
			res.Reason = r.reason
			res.FinalText = Truncate(r.fallback, maxLen)
			return res
		}
	}

	if len(g.tax.MatchForbiddenPhrases(text)) > 0 {
		res.Triggered = true
		res.Reason = ReasonForbiddenPhrase
		res.FinalText = Truncate(FallbackNeedsReview, maxLen)
		return res
	}

	res.FinalText = Truncate(strings.TrimSpace(text), maxLen)
	return res
}

var defaultGuard = New(nil)

// Apply runs the default guard.
func Apply(text string, maxLen int) Result {
	return defaultGuard.Apply(text, maxLen)
}

// Truncate caps text at maxLen runes. When it cuts, the last rune becomes an
// ellipsis so the result never exceeds maxLen. maxLen <= 0 means no limit.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen == 1 {
		return string(runes[:1])
	}
	return strings.TrimRightFunc(string(runes[:maxLen-1]), isTrailingSpace) + ellipsis
}

func isTrailingSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '　'
}

func (g *Guard) leaksInternals(text string) bool {
	if len(g.tax.Match(risk.CategoryInternalLeak, text)) > 0 {
		return true
	}
	for _, re := range leakPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func anyPattern(patterns []*regexp.Regexp) func(string) bool {
	return func(text string) bool {
		for _, re := range patterns {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}
}
