package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/OliverSchlueter/openack/internal/client"
	"github.com/spf13/pflag"
)

func main() {
	sendURL := pflag.String("send-url", "http://localhost:8080", "Base URL of the send API")
	fetchURL := pflag.String("fetch-url", "http://localhost:9090", "Base URL of the fetch API")
	from := pflag.String("from", "", "Sender name")
	to := pflag.StringSlice("to", nil, "Recipient names")
	message := pflag.String("message", "", "Message body")
	files := pflag.StringSlice("file", nil, "Files to attach")
	fetchID := pflag.String("fetch", "", "Fetch the inbox of this agent id instead of sending")
	pflag.Parse()

	c := client.New(client.Configuration{
		SendURL:  *sendURL,
		FetchURL: *fetchURL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *fetchID != "" {
		fetchMessages(ctx, c, *fetchID)
		return
	}
	sendMessage(ctx, c, *from, *to, *message, *files)
}

func sendMessage(ctx context.Context, c *client.Client, from string, to []string, message string, paths []string) {
	req := client.SendReq{
		From:    from,
		To:      to,
		Message: message,
	}
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			log.Fatalf("failed to read attachment: %s", err)
		}
		req.Files = append(req.Files, client.File{Name: filepath.Base(p), Content: content})
	}

	res, err := c.Send(ctx, req)
	if res != nil {
		printJSON(res)
	}
	if err != nil {
		log.Fatalf("failed to send message: %s", err)
	}
}

func fetchMessages(ctx context.Context, c *client.Client, agentID string) {
	res, err := c.Fetch(ctx, agentID)
	if err != nil {
		log.Fatalf("failed to fetch messages: %s", err)
	}
	printJSON(res.Messages)
	if res.Skipped > 0 || res.Unarchived > 0 {
		log.Printf("skipped: %d, unarchived: %d", res.Skipped, res.Unarchived)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("failed to print result: %s", err)
	}
}
