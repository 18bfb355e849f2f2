package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

type settingsReader interface {
	Get(ctx context.Context, tenantID string) (*tenant.Settings, error)
}

// DraftNotifier emails tenant staff when a draft is waiting for review. It
// consumes DraftCreatedV1 outbox entries.
type DraftNotifier struct {
	sender   EmailSender
	settings settingsReader
	logger   *logging.Logger
}

func NewDraftNotifier(sender EmailSender, settings settingsReader, logger *logging.Logger) *DraftNotifier {
	if sender == nil {
		panic("notify: email sender required")
	}
	if settings == nil {
		panic("notify: settings reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DraftNotifier{sender: sender, settings: settings, logger: logger}
}

// Handle sends one email per configured recipient. Tenants without
// recipients are skipped silently.
func (n *DraftNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	var evt events.DraftCreatedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		return fmt.Errorf("notify: decode %s: %w", entry.Type, err)
	}
	cfg, err := n.settings.Get(ctx, evt.TenantID)
	if err != nil {
		return fmt.Errorf("notify: load settings: %w", err)
	}
	recipients := cfg.NotifyRecipients()
	if len(recipients) == 0 {
		return nil
	}

	msg := draftEmail(cfg.Name, evt)
	var failed []string
	for _, to := range recipients {
		msg.To = to
		if err := n.sender.Send(ctx, msg); err != nil {
			failed = append(failed, to)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify: draft email failed for %s", strings.Join(failed, ", "))
	}
	n.logger.Info("draft notification sent", "tenant_id", evt.TenantID, "draft_id", evt.DraftID, "recipients", len(recipients))
	return nil
}

type draftField struct {
	label string
	value string
}

func draftFields(evt events.DraftCreatedV1) []draftField {
	fields := []draftField{{"顧客訊息", evt.UserMessage}}
	if evt.SuggestedReply != "" {
		fields = append(fields, draftField{"建議回覆", evt.SuggestedReply})
	}
	return append(fields,
		draftField{"分類", evt.Category},
		draftField{"對話", evt.ConversationID},
		draftField{"審核期限", evt.ExpiresAt.Format("2006-01-02 15:04 MST")},
	)
}

// draftEmail renders the review request in plain text and HTML. Customer
// text is escaped in the HTML part.
func draftEmail(tenantName string, evt events.DraftCreatedV1) EmailMessage {
	subject := fmt.Sprintf("[%s] 有一則回覆等待審核（%s）", tenantName, evt.Decision)
	fields := draftFields(evt)

	var text, markup strings.Builder
	markup.WriteString("<table>")
	for _, f := range fields {
		fmt.Fprintf(&text, "%s：%s\n", f.label, f.value)
		fmt.Fprintf(&markup, "<tr><th align=\"left\">%s</th><td>%s</td></tr>",
			html.EscapeString(f.label),
			strings.ReplaceAll(html.EscapeString(f.value), "\n", "<br>"))
	}
	markup.WriteString("</table>")

	fromName := DefaultFromName
	if name := strings.TrimSpace(tenantName); name != "" {
		fromName = name + " 客服助理"
	}
	return EmailMessage{
		Subject:  subject,
		Body:     text.String(),
		HTML:     markup.String(),
		FromName: fromName,
		Category: CategoryDraftReview,
		Tags: map[string]string{
			"tenant_id": evt.TenantID,
			"draft_id":  evt.DraftID,
			"decision":  evt.Decision,
		},
	}
}
