package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewMessageStore(db)
	conf := 0.75

	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs(sqlmock.AnyArg(), "tenant-1", "line:tenant-1:U1", "evt-1", RoleAssistant, "您好",
			"ai", true, conf, "low", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := store.Append(context.Background(), Message{
		TenantID:       "tenant-1",
		ConversationID: "line:tenant-1:U1",
		EventID:        "evt-1",
		Role:           RoleAssistant,
		Text:           "您好",
		ResolvedBy:     ResolvedByAI,
		IsResolved:     true,
		Confidence:     &conf,
		RiskTier:       "low",
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageStoreAppendDuplicateIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO conversation_messages").WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err := NewMessageStore(db).Append(context.Background(), Message{
		ConversationID: "c1", EventID: "evt-1", Role: RoleUser, Text: "hi",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestMessageStoreAppendValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewMessageStore(db)

	_, err = store.Append(context.Background(), Message{ConversationID: "c1", Role: RoleUser})
	assert.Error(t, err)
	_, err = store.Append(context.Background(), Message{ConversationID: "c1", EventID: "e", Role: "system"})
	assert.Error(t, err)
}

func TestMessageStoreAppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO conversation_messages").WillReturnError(errors.New("connection reset"))
	_, err = NewMessageStore(db).Append(context.Background(), Message{ConversationID: "c1", EventID: "e", Role: RoleUser})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversation: append message")
}

func TestMessageStoreRecentOldestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "conversation_id", "event_id", "role", "content", "created_at"}).
		AddRow(uuid.NewString(), "t1", "c1", "evt-2", RoleAssistant, "second", now).
		AddRow(uuid.NewString(), "t1", "c1", "evt-1", RoleUser, "first", now.Add(-time.Minute))
	mock.ExpectQuery("SELECT id, tenant_id").WithArgs("c1", "evt-3", 4).WillReturnRows(rows)

	msgs, err := NewMessageStore(db).Recent(context.Background(), "c1", 4, "evt-3")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageStoreRecentZeroLimit(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	msgs, err := NewMessageStore(db).Recent(context.Background(), "c1", 0, "")
	require.NoError(t, err)
	assert.Nil(t, msgs)
}
