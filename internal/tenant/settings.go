// Package tenant provides per-tenant assistant settings.
package tenant

import "strings"

const (
	DefaultConfidenceThreshold = 0.6
	DefaultMemoryWindow        = 6
	MaxMemoryWindow            = 20
	DefaultMaxReplyLength      = 500
	DefaultGroundingSnippets   = 3
	DefaultGroundingChars      = 1500
)

// LineCredentials authenticate webhook calls and outbound messages for a
// tenant's LINE channel.
type LineCredentials struct {
	ChannelSecret string `json:"channel_secret,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
}

// Settings is everything the reply pipeline reads about a tenant.
type Settings struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	BasePrompt          string  `json:"base_prompt,omitempty"`
	Model               string  `json:"model,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MemoryWindow        int     `json:"memory_window"`
	MaxReplyLength      int     `json:"max_reply_length"`

	// WelcomeMessage is sent on follow events; empty disables it.
	WelcomeMessage string `json:"welcome_message,omitempty"`

	GroundingMaxSnippets int `json:"grounding_max_snippets"`
	GroundingMaxChars    int `json:"grounding_max_chars"`

	Line LineCredentials `json:"line"`

	// NotifyEmails receive a message whenever a draft awaits review.
	NotifyEmails []string `json:"notify_emails,omitempty"`
}

// DefaultSettings returns the settings used when a tenant has none stored.
func DefaultSettings(tenantID string) *Settings {
	return &Settings{
		TenantID:             tenantID,
		Name:                 "Store",
		ConfidenceThreshold:  DefaultConfidenceThreshold,
		MemoryWindow:         DefaultMemoryWindow,
		MaxReplyLength:       DefaultMaxReplyLength,
		GroundingMaxSnippets: DefaultGroundingSnippets,
		GroundingMaxChars:    DefaultGroundingChars,
	}
}

// Normalize fills zero values with defaults and bounds the memory window.
func (s *Settings) Normalize() {
	if s.ConfidenceThreshold <= 0 {
		s.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if s.MemoryWindow <= 0 {
		s.MemoryWindow = DefaultMemoryWindow
	}
	if s.MemoryWindow > MaxMemoryWindow {
		s.MemoryWindow = MaxMemoryWindow
	}
	if s.MaxReplyLength <= 0 {
		s.MaxReplyLength = DefaultMaxReplyLength
	}
	if s.GroundingMaxSnippets <= 0 {
		s.GroundingMaxSnippets = DefaultGroundingSnippets
	}
	if s.GroundingMaxChars <= 0 {
		s.GroundingMaxChars = DefaultGroundingChars
	}
	s.WelcomeMessage = strings.TrimSpace(s.WelcomeMessage)
}

// WelcomeEnabled reports whether follow events get a welcome message.
func (s *Settings) WelcomeEnabled() bool {
	return s != nil && strings.TrimSpace(s.WelcomeMessage) != ""
}

// NotifyRecipients returns trimmed, de-duplicated notification addresses.
func (s *Settings) NotifyRecipients() []string {
	seen := make(map[string]struct{}, len(s.NotifyEmails))
	var out []string
	for _, e := range s.NotifyEmails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		key := strings.ToLower(e)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
