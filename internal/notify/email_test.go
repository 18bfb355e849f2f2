package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/guarded-reply/pkg/logging"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil))
}

func TestNewSendGridSenderDefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, DefaultFromName, sender.fromName)
}

type fakeSendGrid struct {
	sent   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSenderSend(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := &SendGridSender{client: fake, fromEmail: "bot@example.com", fromName: "Bot", logger: logging.Default()}

	err := sender.Send(context.Background(), EmailMessage{To: "owner@example.com", Subject: "hi", Body: "body"})
	require.NoError(t, err)
	require.NotNil(t, fake.sent)
	assert.Equal(t, "hi", fake.sent.Subject)

	fake.status = 500
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "owner@example.com"}))

	fake.err = errors.New("timeout")
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "owner@example.com"}))
}

func TestSendGridSenderCarriesReviewMetadata(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := &SendGridSender{client: fake, fromEmail: "bot@example.com", fromName: "Bot", logger: logging.Default()}

	err := sender.Send(context.Background(), EmailMessage{
		To:       "owner@example.com",
		Subject:  "review",
		Body:     "body",
		FromName: "咖啡店 客服助理",
		ReplyTo:  "support@shop.tw",
		Category: CategoryDraftReview,
		Tags:     map[string]string{"tenant_id": "t1", "draft_id": "d1", "empty": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "咖啡店 客服助理", fake.sent.From.Name)
	assert.Equal(t, "support@shop.tw", fake.sent.ReplyTo.Address)
	assert.Equal(t, []string{CategoryDraftReview}, fake.sent.Categories)
	assert.Equal(t, map[string]string{"tenant_id": "t1", "draft_id": "d1"}, fake.sent.CustomArgs)
}

func TestSendersRequireRecipient(t *testing.T) {
	sg := &SendGridSender{client: &fakeSendGrid{status: 202}, logger: logging.Default()}
	assert.ErrorIs(t, sg.Send(context.Background(), EmailMessage{Subject: "s"}), errNoRecipient)

	ses := NewSESSender(&fakeSES{}, SESConfig{FromEmail: "bot@example.com"}, nil)
	assert.ErrorIs(t, ses.Send(context.Background(), EmailMessage{To: "  "}), errNoRecipient)

	assert.ErrorIs(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{}), errNoRecipient)
}

func TestSendGridSenderSendNilClient(t *testing.T) {
	var sender *SendGridSender
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "x@example.com"}))
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "bot@example.com"}, nil)
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{To: "owner@example.com", Subject: "s", Body: "b", HTML: "<p>b</p>"})
	require.NoError(t, err)
	assert.Equal(t, `"Support Assistant" <bot@example.com>`, aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"owner@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "b", aws.ToString(fake.input.Content.Simple.Body.Text.Data))
	assert.NotNil(t, fake.input.Content.Simple.Body.Html)

	fake.err = errors.New("denied")
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "owner@example.com"}))
}

func TestSESSenderTagsAndConfigurationSet(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "bot@example.com", ConfigurationSet: "review-mail"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:       "owner@example.com",
		Subject:  "s",
		Body:     "b",
		FromName: "咖啡店 客服助理",
		ReplyTo:  "support@shop.tw",
		Category: CategoryDraftReview,
		Tags:     map[string]string{"tenant_id": "line:t1", "decision": "SUGGEST_DRAFT"},
	})
	require.NoError(t, err)

	from := aws.ToString(fake.input.FromEmailAddress)
	assert.True(t, strings.HasPrefix(from, "=?utf-8?"), from)
	assert.True(t, strings.HasSuffix(from, "<bot@example.com>"), from)
	assert.Equal(t, "review-mail", aws.ToString(fake.input.ConfigurationSetName))
	assert.Equal(t, []string{"support@shop.tw"}, fake.input.ReplyToAddresses)

	tags := map[string]string{}
	for _, tag := range fake.input.EmailTags {
		tags[aws.ToString(tag.Name)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{
		"category":  CategoryDraftReview,
		"decision":  "SUGGEST_DRAFT",
		"tenant_id": "line_t1",
	}, tags)
}

func TestNewSESSenderNilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}

func TestStubEmailSender(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "x@example.com"}))
}
