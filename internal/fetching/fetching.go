package fetching

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/openack/internal/directory"
	"github.com/OliverSchlueter/openack/internal/mailbox"
)

type Service struct {
	roster  *directory.Roster
	mailbox *mailbox.Store
}

type Configuration struct {
	Roster  *directory.Roster
	Mailbox *mailbox.Store
}

func NewService(cfg Configuration) *Service {
	return &Service{
		roster:  cfg.Roster,
		mailbox: cfg.Mailbox,
	}
}

// Fetch returns all pending messages of the agent behind agentID, oldest
// first, and archives each one after it has been added to the result.
//
// An entry whose archival fails stays in the inbox and is returned again by
// the next fetch, so delivery is at-least-once in that case. Entries that
// cannot be parsed are skipped and left in place. If ctx is done between two
// entries, the remaining ones stay pending and ctx.Err() is returned together
// with what has been processed so far.
func (s *Service) Fetch(ctx context.Context, agentID string) (*Result, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, ErrMissingAgentID
	}

	agent, err := s.roster.Resolve(agentID)
	if err != nil {
		return nil, err
	}

	result := &Result{Agent: agent, Messages: []Message{}}

	// An empty inbox is answered without taking the lock, so it leaves no
	// trace on disk.
	keys, err := s.mailbox.Pending(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("could not list inbox of %s: %w", agent, err)
	}
	if len(keys) == 0 {
		return result, nil
	}

	unlock, err := s.mailbox.Lock(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("could not lock inbox of %s: %w", agent, err)
	}
	defer unlock()

	if n, err := s.mailbox.Prune(ctx, agent); err != nil {
		slog.Warn("Failed to prune inbox", slog.String("agent", agent), sloki.WrapError(err))
	} else if n > 0 {
		slog.Info("Pruned leftovers of archived entries", slog.String("agent", agent), slog.Int("files", n))
	}

	keys, err = s.mailbox.Pending(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("could not list inbox of %s: %w", agent, err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry, err := s.mailbox.Get(ctx, agent, key)
		if err != nil {
			if errors.Is(err, mailbox.ErrEntryNotFound) {
				continue
			}
			if errors.Is(err, mailbox.ErrMalformedMessage) {
				slog.Warn("Skipping malformed message file", slog.String("agent", agent), slog.String("key", key.String()), sloki.WrapError(err))
			} else {
				slog.Error("Failed to read mailbox entry", slog.String("agent", agent), slog.String("key", key.String()), sloki.WrapError(err))
			}
			result.Skipped = append(result.Skipped, Fault{Key: key.String(), Err: err})
			continue
		}

		result.Messages = append(result.Messages, toMessage(entry))

		if err := s.mailbox.Archive(ctx, agent, key); err != nil {
			slog.Error("Failed to archive mailbox entry, it will be delivered again", slog.String("agent", agent), slog.String("key", key.String()), sloki.WrapError(err))
			result.Unarchived = append(result.Unarchived, Fault{Key: key.String(), Err: err})
		}
	}

	slog.Info("Fetched messages", slog.String("agent", agent), slog.Int("count", len(result.Messages)), slog.Int("skipped", len(result.Skipped)), slog.Int("unarchived", len(result.Unarchived)))
	return result, nil
}

func toMessage(entry *mailbox.Entry) Message {
	m := Message{
		From:        entry.Message.From,
		To:          entry.Message.To,
		SentAt:      mailbox.FormatSentAt(entry.Message.SentAt),
		Message:     entry.Message.Body,
		Attachments: make([]Attachment, 0, len(entry.Attachments)),
	}

	for _, a := range entry.Attachments {
		m.Attachments = append(m.Attachments, Attachment{
			File:    a.Name,
			Content: base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	return m
}
