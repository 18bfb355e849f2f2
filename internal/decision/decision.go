// Package decision scores generated replies and routes each inbound event to
// exactly one terminal action.
package decision

import (
	"fmt"

	"github.com/wolfman30/guarded-reply/internal/risk"
)

// Decision is the terminal action taken for an inbound event.
type Decision int

const (
	AutoReply Decision = iota + 1
	SuggestDraft
	AskClarification
	Handoff
)

func (d Decision) String() string {
	switch d {
	case AutoReply:
		return "AUTO_REPLY"
	case SuggestDraft:
		return "SUGGEST_DRAFT"
	case AskClarification:
		return "ASK_CLARIFICATION"
	case Handoff:
		return "HANDOFF"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// MarshalText encodes the decision by its upper-case name.
func (d Decision) MarshalText() ([]byte, error) {
	if d < AutoReply || d > Handoff {
		return nil, fmt.Errorf("decision: invalid value %d", int(d))
	}
	return []byte(d.String()), nil
}

// CreatesDraft reports whether the decision leaves a reviewable draft.
func (d Decision) CreatesDraft() bool {
	return d != AutoReply
}

// RoutePreGeneration handles the high-risk branch before any generation work.
// The second return is false when the message should continue to grounding.
func RoutePreGeneration(a risk.Assessment) (Decision, bool) {
	if a.Tier != risk.TierHigh {
		return 0, false
	}
	if !a.IsStructuredRefund {
		return Handoff, true
	}
	if a.HasOrderReference {
		return SuggestDraft, true
	}
	return AskClarification, true
}

// RoutePostGeneration gates automatic delivery on grounding and confidence.
func RoutePostGeneration(sourceCount int, confidence, threshold float64) Decision {
	if sourceCount == 0 || confidence < ClampThreshold(threshold) {
		return SuggestDraft
	}
	return AutoReply
}
