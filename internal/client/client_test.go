package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/OliverSchlueter/openack/internal/app"
	"github.com/OliverSchlueter/openack/internal/config"
	"github.com/OliverSchlueter/openack/internal/sending"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*Client, config.Config) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Config{
		MessagesRoot:   filepath.Join(dir, "messages"),
		PeopleFile:     filepath.Join(dir, "people.yml"),
		AgentIDsFile:   filepath.Join(dir, "agent_ids.yml"),
		TransactionLog: filepath.Join(dir, "transactions.log"),
		MaxUploadMB:    1,
	}
	require.NoError(t, os.WriteFile(cfg.PeopleFile, []byte("people:\n  - paul\n  - david\n"), 0o644))
	require.NoError(t, os.WriteFile(cfg.AgentIDsFile, []byte("id:\n  Dkkd882kk: david\n"), 0o644))

	sendSrv, err := app.NewSendServer(cfg)
	require.NoError(t, err)
	fetchSrv, err := app.NewFetchServer(cfg)
	require.NoError(t, err)

	sendHTTP := httptest.NewServer(sendSrv.Handler())
	t.Cleanup(sendHTTP.Close)
	fetchHTTP := httptest.NewServer(fetchSrv.Handler())
	t.Cleanup(fetchHTTP.Close)

	return New(Configuration{SendURL: sendHTTP.URL + "/", FetchURL: fetchHTTP.URL}), cfg
}

func TestSendAndFetch(t *testing.T) {
	c, cfg := newClient(t)
	ctx := context.Background()

	res, err := c.Send(ctx, SendReq{
		From:    "paul",
		To:      []string{"david"},
		Message: "hello",
		Files:   []File{{Name: "a.txt", Content: []byte("A")}},
	})
	require.NoError(t, err)
	assert.Equal(t, sending.StatusOK, res.Status)
	require.Len(t, res.Deliveries, 1)

	got, err := c.Fetch(ctx, "Dkkd882kk")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Message)
	assert.Equal(t, res.Deliveries[0].Attachments[0], got.Messages[0].Attachments[0].File)
	assert.Zero(t, got.Skipped)
	assert.Zero(t, got.Unarchived)

	journal, err := os.ReadFile(cfg.TransactionLog)
	require.NoError(t, err)
	assert.Contains(t, string(journal), "from=paul,to=david,datetime=")

	again, err := c.Fetch(ctx, "Dkkd882kk")
	require.NoError(t, err)
	assert.Empty(t, again.Messages)
}

func TestSendAndFetchKeepsBodyVerbatim(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	for _, body := range []string{
		"    func main() {}\n",
		"\n\nleading blank lines\n\n\n",
		"  === FOOTER ===  \ttrailing tab\t",
	} {
		_, err := c.Send(ctx, SendReq{From: "paul", To: []string{"david"}, Message: body})
		require.NoError(t, err)

		got, err := c.Fetch(ctx, "Dkkd882kk")
		require.NoError(t, err)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, body, got.Messages[0].Message)
	}
}

func TestSendRejected(t *testing.T) {
	c, _ := newClient(t)

	_, err := c.Send(context.Background(), SendReq{From: "paul", To: []string{"mallory"}, Message: "hi"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.GreaterOrEqual(t, apiErr.StatusCode, 400)
	assert.Less(t, apiErr.StatusCode, 500)
	assert.Contains(t, apiErr.Body, "mallory")
}

func TestFetchUnknownID(t *testing.T) {
	c, _ := newClient(t)

	_, err := c.Fetch(context.Background(), "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
}

func TestDirectory(t *testing.T) {
	c, _ := newClient(t)

	people, err := c.Directory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"david", "paul"}, people)
}
