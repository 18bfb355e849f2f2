package events

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// EventKind is the normalized kind of an inbound channel event.
type EventKind string

const (
	KindText   EventKind = "text"
	KindFollow EventKind = "follow"
	KindOther  EventKind = "other"
)

// InboundEvent is a channel event normalized by a webhook adapter. It is
// immutable once published and consumed at most once per EventID.
type InboundEvent struct {
	EventID        string    `json:"event_id"`
	TenantID       string    `json:"tenant_id"`
	Channel        string    `json:"channel"`
	ChannelUserID  string    `json:"channel_user_id"`
	ConversationID string    `json:"conversation_id"`
	Kind           EventKind `json:"kind"`
	Text           string    `json:"text,omitempty"`
	ReplyToken     string    `json:"reply_token,omitempty"`
	IsRedelivery   bool      `json:"is_redelivery,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// DedupKey returns the provider event id when present, otherwise a stable
// digest of (delivery token, timestamp, sender).
func DedupKey(providerEventID, deliveryToken string, timestampMillis int64, sender string) string {
	if id := strings.TrimSpace(providerEventID); id != "" {
		return id
	}
	h := sha256.Sum256([]byte(deliveryToken + "|" + strconv.FormatInt(timestampMillis, 10) + "|" + sender))
	return "composite:" + hex.EncodeToString(h[:16])
}

// ConversationKey derives the conversation id for a channel user of a tenant.
func ConversationKey(channel, tenantID, channelUserID string) string {
	return channel + ":" + tenantID + ":" + channelUserID
}
