package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// ChannelName is the channel tag written on normalized events.
const ChannelName = "line"

const maxBodyBytes = 1 << 20

type credentialSource interface {
	LineCredentials(ctx context.Context, tenantID string) (tenant.LineCredentials, error)
}

// PublishFunc hands a normalized event to the intake queue.
type PublishFunc func(ctx context.Context, evt events.InboundEvent) error

// WebhookHandler verifies and normalizes LINE webhook batches for a tenant.
type WebhookHandler struct {
	creds   credentialSource
	publish PublishFunc
	logger  *logging.Logger
	now     func() time.Time
}

func NewWebhookHandler(creds credentialSource, publish PublishFunc, logger *logging.Logger) *WebhookHandler {
	if creds == nil {
		panic("line: credential source required")
	}
	if publish == nil {
		panic("line: publish func required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{creds: creds, publish: publish, logger: logger, now: time.Now}
}

// HandleInbound handles POST /webhooks/line/{tenantID}. Every event of the
// batch is published before responding so that a publish failure surfaces
// as a 5xx and LINE redelivers the batch.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	creds, err := h.creds.LineCredentials(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("line: load credentials failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !VerifySignature(creds.ChannelSecret, body, r.Header.Get("X-Line-Signature")) {
		h.logger.Warn("line: invalid webhook signature", "tenant_id", tenantID)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var batch WebhookBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	received := h.now().UTC()
	for _, evt := range Normalize(tenantID, batch, received) {
		if err := h.publish(r.Context(), evt); err != nil {
			h.logger.Error("line: publish event failed",
				"tenant_id", tenantID,
				"event_id", evt.EventID,
				"error", err,
			)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// Normalize converts a webhook batch into inbound events. Events without a
// user source are dropped.
func Normalize(tenantID string, batch WebhookBatch, receivedAt time.Time) []events.InboundEvent {
	out := make([]events.InboundEvent, 0, len(batch.Events))
	for _, e := range batch.Events {
		userID := strings.TrimSpace(e.Source.UserID)
		if userID == "" {
			continue
		}
		evt := events.InboundEvent{
			EventID:        events.DedupKey(e.WebhookEventID, e.ReplyToken, e.Timestamp, userID),
			TenantID:       tenantID,
			Channel:        ChannelName,
			ChannelUserID:  userID,
			ConversationID: events.ConversationKey(ChannelName, tenantID, userID),
			Kind:           events.KindOther,
			ReplyToken:     e.ReplyToken,
			IsRedelivery:   e.DeliveryContext.IsRedelivery,
			ReceivedAt:     receivedAt,
		}
		switch {
		case e.Type == "follow":
			evt.Kind = events.KindFollow
		case e.Type == "message" && e.Message != nil && e.Message.Type == "text":
			evt.Kind = events.KindText
			evt.Text = e.Message.Text
		}
		out = append(out, evt)
	}
	return out
}

// VerifySignature checks the X-Line-Signature header, the base64 encoded
// HMAC-SHA256 of the body keyed by the channel secret.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
