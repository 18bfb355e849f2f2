package line

// WebhookBatch is the body LINE posts to a webhook URL.
type WebhookBatch struct {
	Destination string         `json:"destination"`
	Events      []WebhookEvent `json:"events"`
}

// WebhookEvent is one entry of a webhook batch. Only the fields the
// pipeline reads are decoded.
type WebhookEvent struct {
	Type            string          `json:"type"`
	Mode            string          `json:"mode,omitempty"`
	WebhookEventID  string          `json:"webhookEventId"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`
	Timestamp       int64           `json:"timestamp"`
	Source          Source          `json:"source"`
	ReplyToken      string          `json:"replyToken,omitempty"`
	Message         *Message        `json:"message,omitempty"`
}

type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextMessage is an outbound text message object.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReplyRequest is the body of POST /v2/bot/message/reply.
type ReplyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []TextMessage `json:"messages"`
}

// PushRequest is the body of POST /v2/bot/message/push.
type PushRequest struct {
	To       string        `json:"to"`
	Messages []TextMessage `json:"messages"`
}

// ErrorResponse is returned by the Messaging API on non-2xx responses.
type ErrorResponse struct {
	Message string `json:"message"`
}
