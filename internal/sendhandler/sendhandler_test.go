package sendhandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/OliverSchlueter/openack/internal/directory"
	dirfake "github.com/OliverSchlueter/openack/internal/directory/database/fake"
	"github.com/OliverSchlueter/openack/internal/mailbox"
	"github.com/OliverSchlueter/openack/internal/mailbox/database/fake"
	"github.com/OliverSchlueter/openack/internal/sending"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	field    string
	filename string
	content  string
}

func newRouter(t *testing.T) (http.Handler, *fake.DB) {
	t.Helper()

	roster, err := directory.Load(dirfake.NewDB([]string{"paul", "david", "tim"}, nil))
	require.NoError(t, err)

	db := fake.NewDB()
	svc := sending.NewService(sending.Configuration{
		Roster:  roster,
		Mailbox: mailbox.NewStore(mailbox.Configuration{DB: db}),
		Now:     func() time.Time { return time.Date(2026, 2, 13, 2, 15, 26, 0, time.UTC) },
	})

	r := chi.NewRouter()
	New(svc, roster, 1<<20).Register(r)
	return r, db
}

func multipartRequest(t *testing.T, fields [][2]string, parts []part) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range fields {
		require.NoError(t, mw.WriteField(f[0], f[1]))
	}
	for _, p := range parts {
		w, err := mw.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/messages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) sending.Result {
	t.Helper()
	var res sending.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func assertClientError(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.GreaterOrEqual(t, rec.Code, 400)
	assert.Less(t, rec.Code, 500)
}

func TestSendMultipart(t *testing.T) {
	r, db := newRouter(t)

	req := multipartRequest(t,
		[][2]string{{"from", "paul"}, {"to", "david"}, {"to", "tim"}, {"message", "hello"}},
		[]part{
			{field: "zz", filename: "last.txt", content: "z"},
			{field: "files", filename: "first.txt", content: "f"},
			{field: "aa", filename: "middle.txt", content: "a"},
		},
	)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeResult(t, rec)
	assert.Equal(t, sending.StatusOK, res.Status)
	assert.Equal(t, []string{"david", "tim"}, res.To)
	assert.Equal(t, "2026-02-13T02:15:26+00:00", res.SentAt)

	require.Len(t, db.Inboxes["david"], 1)
	entry := db.Inboxes["david"][0]
	assert.Equal(t, []string{
		entry.Key.AttachmentFileName("first.txt"),
		entry.Key.AttachmentFileName("middle.txt"),
		entry.Key.AttachmentFileName("last.txt"),
	}, entry.Message.Attachments)
	assert.Equal(t, "f", string(entry.Attachments[0].Content))
}

func TestSendMultipartMediaTypeIsCaseInsensitive(t *testing.T) {
	r, db := newRouter(t)

	req := multipartRequest(t,
		[][2]string{{"from", "paul"}, {"to", "david"}, {"message", "hello"}},
		[]part{{field: "files", filename: "report.txt", content: "42"}},
	)
	ct := req.Header.Get("Content-Type")
	req.Header.Set("Content-Type", "Multipart/Form-Data"+strings.TrimPrefix(ct, "multipart/form-data"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, db.Inboxes["david"], 1)
	entry := db.Inboxes["david"][0]
	assert.Equal(t, "hello", entry.Message.Body)
	assert.Equal(t, []string{entry.Key.AttachmentFileName("report.txt")}, entry.Message.Attachments)
}

func TestSendURLEncoded(t *testing.T) {
	r, db := newRouter(t)

	form := url.Values{"from": {"paul"}, "to": {"david, tim"}, "message": {"hi"}}
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, db.Inboxes["david"], 1)
	assert.Len(t, db.Inboxes["tim"], 1)
}

func TestSendValidation(t *testing.T) {
	tests := map[string][][2]string{
		"missing from":      {{"to", "david"}, {"message", "hi"}},
		"missing to":        {{"from", "paul"}, {"message", "hi"}},
		"missing message":   {{"from", "paul"}, {"to", "david"}},
		"blank message":     {{"from", "paul"}, {"to", "david"}, {"message", "   "}},
		"unknown sender":    {{"from", "mallory"}, {"to", "david"}, {"message", "hi"}},
		"unknown recipient": {{"from", "paul"}, {"to", "david"}, {"to", "mallory"}, {"message", "hi"}},
	}

	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			r, db := newRouter(t)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, multipartRequest(t, fields, nil))

			assertClientError(t, rec)
			assert.Empty(t, db.Inboxes)
		})
	}
}

func TestSendUnknownRecipientNamesThem(t *testing.T) {
	r, _ := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, [][2]string{{"from", "paul"}, {"to", "mallory"}, {"to", "eve"}, {"message", "hi"}}, nil))

	assertClientError(t, rec)
	assert.Contains(t, rec.Body.String(), "mallory, eve")
}

func TestSendPartial(t *testing.T) {
	r, db := newRouter(t)
	db.InsertErrors["tim"] = errors.New("disk full")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, [][2]string{{"from", "paul"}, {"to", "david"}, {"to", "tim"}, {"message", "hi"}}, nil))

	require.Equal(t, http.StatusMultiStatus, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, sending.StatusPartial, res.Status)
	assert.Equal(t, "disk full", res.Deliveries[1].Error)
}

func TestSendAllFailed(t *testing.T) {
	r, db := newRouter(t)
	db.InsertErrors["david"] = errors.New("disk full")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, [][2]string{{"from", "paul"}, {"to", "david"}, {"message", "hi"}}, nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, sending.StatusFailed, decodeResult(t, rec).Status)
}

func TestMessagesMethodNotAllowed(t *testing.T) {
	r, _ := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages", nil))
	assertClientError(t, rec)
}

func TestDirectory(t *testing.T) {
	r, _ := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/directory", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DirectoryResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, DirectoryResp{People: []string{"david", "paul", "tim"}, Count: 3}, resp)
}
