package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/openack/internal/app"
	"github.com/OliverSchlueter/openack/internal/client"
	"github.com/OliverSchlueter/openack/internal/config"
)

const (
	peopleYAML = `people:
  - paul
  - david
  - tim
`
	agentIDsYAML = `id:
  Uweeuhdh123: paul
  Dkkd882kk: david
  Tt09xx: tim
`
)

// e2e runs both services in-process on a throwaway messages root and walks
// through send, fetch and archive.
func main() {
	lokiService := sloki.NewService(sloki.Configuration{
		URL:          "http://localhost:3100/loki/api/v1/push",
		Service:      "openack-e2e",
		ConsoleLevel: slog.LevelDebug,
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   false,
	})
	slog.SetDefault(slog.New(lokiService))

	if err := run(); err != nil {
		slog.Error("E2E run failed", sloki.WrapError(err))
		os.Exit(1)
	}
	slog.Info("E2E run succeeded")
}

func run() error {
	dir, err := os.MkdirTemp("", "openack-e2e-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	peopleFile := filepath.Join(dir, "people.yml")
	agentIDsFile := filepath.Join(dir, "agent_ids.yml")
	if err := os.WriteFile(peopleFile, []byte(peopleYAML), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(agentIDsFile, []byte(agentIDsYAML), 0o644); err != nil {
		return err
	}

	cfg := config.Config{
		MessagesRoot:   filepath.Join(dir, "messages"),
		PeopleFile:     peopleFile,
		AgentIDsFile:   agentIDsFile,
		TransactionLog: filepath.Join(dir, "transactions.log"),
		MaxUploadMB:    8,
	}

	sendSrv, err := app.NewSendServer(cfg)
	if err != nil {
		return err
	}
	fetchSrv, err := app.NewFetchServer(cfg)
	if err != nil {
		return err
	}

	sendHTTP := httptest.NewServer(sendSrv.Handler())
	defer sendHTTP.Close()
	fetchHTTP := httptest.NewServer(fetchSrv.Handler())
	defer fetchHTTP.Close()

	c := client.New(client.Configuration{
		SendURL:  sendHTTP.URL,
		FetchURL: fetchHTTP.URL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	people, err := c.Directory(ctx)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	slog.Info("Directory", slog.Any("people", people))

	res, err := c.Send(ctx, client.SendReq{
		From:    "paul",
		To:      []string{"david", "tim"},
		Message: "Build is green, please deploy.",
		Files:   []client.File{{Name: "report.txt", Content: []byte("all 42 checks passed\n")}},
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	slog.Info("Sent message", slog.String("status", res.Status), slog.Int("deliveries", len(res.Deliveries)))

	got, err := c.Fetch(ctx, "Dkkd882kk")
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(got.Messages) != 1 {
		return fmt.Errorf("expected 1 message for david, got %d", len(got.Messages))
	}
	m := got.Messages[0]
	if len(m.Attachments) != 1 {
		return fmt.Errorf("expected 1 attachment, got %d", len(m.Attachments))
	}
	content, err := base64.StdEncoding.DecodeString(m.Attachments[0].Content)
	if err != nil {
		return fmt.Errorf("attachment content: %w", err)
	}
	slog.Info("Fetched message", slog.String("from", m.From), slog.String("message", m.Message), slog.String("attachment", string(content)))

	again, err := c.Fetch(ctx, "Dkkd882kk")
	if err != nil {
		return fmt.Errorf("second fetch: %w", err)
	}
	if len(again.Messages) != 0 {
		return fmt.Errorf("expected empty inbox after fetch, got %d messages", len(again.Messages))
	}

	bundles, err := filepath.Glob(filepath.Join(cfg.MessagesRoot, "david", "done", "*.zip"))
	if err != nil {
		return err
	}
	if len(bundles) != 1 {
		return fmt.Errorf("expected 1 archive bundle, got %d", len(bundles))
	}
	slog.Info("Archived", slog.String("bundle", filepath.Base(bundles[0])))

	return nil
}
