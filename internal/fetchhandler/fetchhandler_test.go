package fetchhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OliverSchlueter/openack/internal/directory"
	dirfake "github.com/OliverSchlueter/openack/internal/directory/database/fake"
	"github.com/OliverSchlueter/openack/internal/fetching"
	"github.com/OliverSchlueter/openack/internal/mailbox"
	"github.com/OliverSchlueter/openack/internal/mailbox/database/fake"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (http.Handler, *mailbox.Store, *fake.DB) {
	t.Helper()

	roster, err := directory.Load(dirfake.NewDB([]string{"paul", "david"}, map[string]string{"Dkkd882kk": "david"}))
	require.NoError(t, err)

	db := fake.NewDB()
	store := mailbox.NewStore(mailbox.Configuration{DB: db})

	r := chi.NewRouter()
	New(fetching.NewService(fetching.Configuration{Roster: roster, Mailbox: store})).Register(r)
	return r, store, db
}

func TestFetchMessages(t *testing.T) {
	r, store, db := newRouter(t)

	sentAt := time.Date(2026, 2, 13, 2, 15, 26, 0, time.UTC)
	entry, err := store.Deliver(context.Background(), "david", mailbox.Message{From: "paul", SentAt: sentAt, Body: "hi"},
		[]mailbox.Attachment{{Name: "a.txt", Content: []byte("hello")}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages?id=Dkkd882kk", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get(HeaderSkipped))
	assert.Empty(t, rec.Header().Get(HeaderUnarchived))

	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "paul", msgs[0]["from"])
	assert.Equal(t, "david", msgs[0]["to"])
	assert.Equal(t, "2026-02-13T02:15:26+00:00", msgs[0]["sent_at"])
	assert.Equal(t, "hi", msgs[0]["message"])
	assert.Equal(t, []any{map[string]any{
		"file":    entry.Key.AttachmentFileName("a.txt"),
		"content": "aGVsbG8=",
	}}, msgs[0]["attachments"])

	assert.Len(t, db.Done["david"], 1)
}

func TestFetchEmpty(t *testing.T) {
	r, _, _ := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages?id=Dkkd882kk", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestFetchUnarchivedHeader(t *testing.T) {
	r, store, db := newRouter(t)

	entry, err := store.Deliver(context.Background(), "david", mailbox.Message{From: "paul", SentAt: time.Now(), Body: "hi"}, nil)
	require.NoError(t, err)
	db.ArchiveErrors[entry.Key.String()] = errors.New("read-only")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages?id=Dkkd882kk", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderUnarchived))
}

func TestFetchBadID(t *testing.T) {
	r, _, _ := newRouter(t)

	for _, target := range []string{"/messages", "/messages?id=", "/messages?id=unknown", "/messages?id=david"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.GreaterOrEqual(t, rec.Code, 400, target)
		assert.Less(t, rec.Code, 500, target)
	}
}

func TestFetchMethodNotAllowed(t *testing.T) {
	r, _, _ := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages?id=Dkkd882kk", nil))
	assert.GreaterOrEqual(t, rec.Code, 400)
	assert.Less(t, rec.Code, 500)
}
