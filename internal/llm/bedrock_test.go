package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
			TotalTokens:  aws.Int32(15),
		},
	}
}

func TestBedrockCompleteBuildsConverseInput(t *testing.T) {
	api := &fakeConverse{out: textOutput("  您好！ ")}
	client := NewBedrockClient(api)

	resp, err := client.Complete(context.Background(), Request{
		Model:  "anthropic.test-model",
		System: []string{"system prompt", "  "},
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleSystem, Content: "extra rule"},
			{Role: RoleUser, Content: "營業時間？"},
		},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "您好！", resp.Text)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.test-model", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 2)
	assert.Len(t, api.input.Messages, 3)
	assert.Equal(t, int32(300), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockCompleteErrors(t *testing.T) {
	client := NewBedrockClient(&fakeConverse{err: errors.New("throttled")})
	_, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	_, err = client.Complete(context.Background(), Request{})
	assert.Error(t, err)

	_, err = client.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.Error(t, err)
}

func TestBedrockCompleteRejectsNonMessageOutput(t *testing.T) {
	client := NewBedrockClient(&fakeConverse{out: &bedrockruntime.ConverseOutput{}})
	_, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.Error(t, err)
}
