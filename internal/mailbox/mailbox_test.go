package mailbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/OliverSchlueter/openack/internal/mailbox"
	"github.com/OliverSchlueter/openack/internal/mailbox/database/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	db := fake.NewDB()
	store := mailbox.NewStore(mailbox.Configuration{DB: db})
	ctx := context.Background()

	sentAt := time.Date(2026, 2, 13, 2, 15, 26, 500, time.UTC)
	entry, err := store.Deliver(ctx, "david", mailbox.Message{
		From:   "paul",
		To:     "someone else",
		SentAt: sentAt,
		Body:   "hello",
	}, []mailbox.Attachment{
		{Name: "../report.txt", Content: []byte("r")},
	})
	require.NoError(t, err)

	assert.Equal(t, "david", entry.Message.To)
	assert.True(t, entry.Message.SentAt.Equal(sentAt.Truncate(time.Second)))
	assert.Equal(t, []string{entry.Key.AttachmentFileName("report.txt")}, entry.Message.Attachments)
	require.Len(t, entry.Attachments, 1)
	assert.Equal(t, entry.Key.AttachmentFileName("report.txt"), entry.Attachments[0].Name)

	require.Len(t, db.Inboxes["david"], 1)
	assert.Equal(t, entry.Key.String(), db.Inboxes["david"][0].Key.String())
}

func TestDeliverRequiresRecipient(t *testing.T) {
	store := mailbox.NewStore(mailbox.Configuration{DB: fake.NewDB()})

	_, err := store.Deliver(context.Background(), "", mailbox.Message{From: "paul", Body: "x"}, nil)
	require.Error(t, err)
}

func TestPendingIsSorted(t *testing.T) {
	db := fake.NewDB()
	store := mailbox.NewStore(mailbox.Configuration{DB: db})
	ctx := context.Background()

	base := time.Date(2026, 2, 13, 2, 15, 26, 0, time.UTC)
	for _, offset := range []int{3, 1, 2, 1} {
		_, err := store.Deliver(ctx, "david", mailbox.Message{From: "paul", SentAt: base.Add(time.Duration(offset) * time.Second), Body: "x"}, nil)
		require.NoError(t, err)
	}

	keys, err := store.Pending(ctx, "david")
	require.NoError(t, err)
	require.Len(t, keys, 4)
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, keys[i-1].Compare(keys[i]))
	}
}

func TestArchiveMovesEntry(t *testing.T) {
	db := fake.NewDB()
	store := mailbox.NewStore(mailbox.Configuration{DB: db})
	ctx := context.Background()

	entry, err := store.Deliver(ctx, "david", mailbox.Message{From: "paul", SentAt: time.Now(), Body: "x"}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Archive(ctx, "david", entry.Key))

	keys, err := store.Pending(ctx, "david")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Len(t, db.Done["david"], 1)

	_, err = store.Get(ctx, "david", entry.Key)
	assert.ErrorIs(t, err, mailbox.ErrEntryNotFound)
}
