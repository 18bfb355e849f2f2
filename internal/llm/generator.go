package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role string
	Text string
}

// GenerateRequest is the reply generator contract.
type GenerateRequest struct {
	UserMessage    string
	SystemPrompt   string
	Model          string
	TenantID       string
	ConversationID string
	History        []Turn
	MaxLength      int
}

// ReplyGenerator is what the pipeline depends on.
type ReplyGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ErrEmptyModel is returned when neither the request nor the generator names a model.
var ErrEmptyModel = errors.New("llm: model id is required")

const (
	defaultTemperature = 0.3
	minMaxTokens       = 256
	maxMaxTokens       = 2048
)

// Generator adapts a provider Client to the reply generator contract.
type Generator struct {
	client       Client
	defaultModel string
}

func NewGenerator(client Client, defaultModel string) *Generator {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	return &Generator{client: client, defaultModel: strings.TrimSpace(defaultModel)}
}

// Generate sends the system prompt, the bounded history and the user message
// as one completion. It does not retry.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = g.defaultModel
	}
	if model == "" {
		return "", ErrEmptyModel
	}

	messages := make([]Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := RoleUser
		if turn.Role == RoleAssistant {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.UserMessage})

	resp, err := g.client.Complete(ctx, Request{
		Model:       model,
		System:      []string{req.SystemPrompt},
		Messages:    messages,
		MaxTokens:   maxTokensFor(req.MaxLength),
		Temperature: defaultTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: generate for conversation %s: %w", req.ConversationID, err)
	}
	return resp.Text, nil
}

// maxTokensFor budgets roughly two tokens per CJK rune.
func maxTokensFor(maxLength int) int32 {
	tokens := maxLength * 2
	if tokens < minMaxTokens {
		tokens = minMaxTokens
	}
	if tokens > maxMaxTokens {
		tokens = maxMaxTokens
	}
	return int32(tokens)
}
