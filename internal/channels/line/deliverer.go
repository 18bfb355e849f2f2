package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// Deliverer sends pipeline replies back to LINE users. It answers with the
// event's reply token and falls back to a push message when the token is
// missing or rejected.
type Deliverer struct {
	creds      credentialSource
	apiBase    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewDeliverer(creds credentialSource, apiBase string, httpClient *http.Client, logger *logging.Logger) *Deliverer {
	if creds == nil {
		panic("line: credential source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{creds: creds, apiBase: apiBase, httpClient: httpClient, logger: logger}
}

func (d *Deliverer) Deliver(ctx context.Context, evt events.InboundEvent, text string) error {
	creds, err := d.creds.LineCredentials(ctx, evt.TenantID)
	if err != nil {
		return fmt.Errorf("line: load credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return errors.New("line: tenant has no access token")
	}
	client := NewClient(creds.AccessToken, d.apiBase, d.httpClient)

	if evt.ReplyToken != "" {
		replyErr := client.Reply(ctx, evt.ReplyToken, text)
		if replyErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return replyErr
		}
		d.logger.Warn("line: reply failed, falling back to push",
			"tenant_id", evt.TenantID,
			"event_id", evt.EventID,
			"error", replyErr,
		)
	}
	if evt.ChannelUserID == "" {
		return errors.New("line: no recipient for push")
	}
	if err := client.Push(ctx, evt.ChannelUserID, text); err != nil {
		return err
	}
	return nil
}
