package risk

import (
	"regexp"
	"strings"
)

// InjectionResult reports how strongly a message looks like an attempt to
// override the assistant's instructions.
type InjectionResult struct {
	Blocked bool
	Score   float64
	Reasons []string
}

type injectionPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

// injectionBlockThreshold: scores at or above this never reach the generator.
const injectionBlockThreshold = 0.7

var injectionPatterns = []injectionPattern{
	// instruction override
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "override:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)(disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "override:disregard_instructions", 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), "override:role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "override:new_instructions", 0.9},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|god\s*mode`), "override:jailbreak_keyword", 0.9},
	{regexp.MustCompile(`(忽略|無視|忘記)(之前|先前|以上|上面|所有)的?(指示|指令|規則|設定)`), "override:ignore_instructions_zh", 0.9},
	{regexp.MustCompile(`你現在(是|扮演)(一個|一位)?`), "override:role_reassignment_zh", 0.7},

	// exfiltration
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat|tell\s+me)\s+(your\s+)?(system\s+prompt|instructions?|initial\s+prompt|hidden\s+prompt)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(?i)repeat\s+(everything|all|the\s+text)\s+(above|before|from\s+the\s+(start|beginning))`), "exfiltration:repeat_above", 0.7},
	{regexp.MustCompile(`(告訴我|顯示|列出|說出)你的(系統)?(提示|指令|設定|規則)`), "exfiltration:system_prompt_zh", 0.8},

	// context manipulation
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>`), "context:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|assistant)\s*:`), "context:role_markers", 0.7},
	{regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed)\b`), "context:html_injection", 0.6},
}

// ScanInjection scores text against the injection pattern table. The score is
// the strongest single signal plus 0.1 per additional signal, capped at 1.
func ScanInjection(text string) InjectionResult {
	if strings.TrimSpace(text) == "" {
		return InjectionResult{}
	}

	var reasons []string
	maxWeight := 0.0
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			reasons = append(reasons, p.reason)
			if p.weight > maxWeight {
				maxWeight = p.weight
			}
		}
	}
	if len(reasons) == 0 {
		return InjectionResult{}
	}

	score := maxWeight + float64(len(reasons)-1)*0.1
	if score > 1.0 {
		score = 1.0
	}
	return InjectionResult{
		Blocked: score >= injectionBlockThreshold,
		Score:   score,
		Reasons: reasons,
	}
}
