package line

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/tenant"
)

func TestClientReply(t *testing.T) {
	var received ReplyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/reply", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("tok", server.URL, nil)
	require.NoError(t, client.Reply(context.Background(), "rt-1", "您好"))
	assert.Equal(t, "rt-1", received.ReplyToken)
	require.Len(t, received.Messages, 1)
	assert.Equal(t, TextMessage{Type: "text", Text: "您好"}, received.Messages[0])
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer server.Close()

	err := NewClient("tok", server.URL, nil).Reply(context.Background(), "expired", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid reply token")
}

func TestDelivererFallsBackToPush(t *testing.T) {
	var paths []string
	var push PushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v2/bot/message/reply" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Invalid reply token"}`))
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&push))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	d := NewDeliverer(stubCreds{creds: tenant.LineCredentials{AccessToken: "tok"}}, server.URL, nil, nil)
	err := d.Deliver(context.Background(), events.InboundEvent{
		TenantID: "t1", EventID: "e1", ChannelUserID: "U1", ReplyToken: "rt-old",
	}, "稍後由專人回覆")

	require.NoError(t, err)
	assert.Equal(t, []string{"/v2/bot/message/reply", "/v2/bot/message/push"}, paths)
	assert.Equal(t, "U1", push.To)
	assert.Equal(t, "稍後由專人回覆", push.Messages[0].Text)
}

func TestDelivererReplySucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v2/bot/message/reply", r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	d := NewDeliverer(stubCreds{creds: tenant.LineCredentials{AccessToken: "tok"}}, server.URL, nil, nil)
	require.NoError(t, d.Deliver(context.Background(), events.InboundEvent{
		TenantID: "t1", ChannelUserID: "U1", ReplyToken: "rt",
	}, "ok"))
	assert.Equal(t, 1, calls)
}

func TestDelivererRequiresAccessToken(t *testing.T) {
	d := NewDeliverer(stubCreds{}, "http://unused", nil, nil)
	err := d.Deliver(context.Background(), events.InboundEvent{TenantID: "t1", ChannelUserID: "U1"}, "x")
	assert.Error(t, err)
}
