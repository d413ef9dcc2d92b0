package sending

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/openack/internal/directory"
	"github.com/OliverSchlueter/openack/internal/mailbox"
	"github.com/OliverSchlueter/openack/internal/notify"
)

type Journal interface {
	Record(from string, to string, sentAt time.Time) error
}

type Service struct {
	roster   *directory.Roster
	mailbox  *mailbox.Store
	journal  Journal
	notifier notify.Notifier
	now      func() time.Time
}

type Configuration struct {
	Roster   *directory.Roster
	Mailbox  *mailbox.Store
	Journal  Journal
	Notifier notify.Notifier
	Now      func() time.Time
}

func NewService(cfg Configuration) *Service {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		roster:   cfg.Roster,
		mailbox:  cfg.Mailbox,
		journal:  cfg.Journal,
		notifier: cfg.Notifier,
		now:      cfg.Now,
	}
}

// Send validates the whole request up front and then writes one entry per
// recipient. A failed write only affects its own recipient; the result tells
// which deliveries succeeded. If none did, ErrDeliveryFailed is returned along
// with the result.
func (s *Service) Send(ctx context.Context, req Request) (*Result, error) {
	from, err := s.roster.ValidateSender(req.From)
	if err != nil {
		return nil, err
	}

	if len(req.To) == 0 {
		return nil, ErrNoRecipients
	}
	recipients, err := s.roster.ValidateRecipients(req.To)
	if err != nil {
		return nil, err
	}
	recipients = dedupe(recipients)

	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	sentAt := s.now().UTC().Truncate(time.Second)
	result := &Result{
		From:       from,
		To:         recipients,
		SentAt:     mailbox.FormatSentAt(sentAt),
		Deliveries: make([]Delivery, 0, len(recipients)),
	}

	delivered := 0
	for _, recipient := range recipients {
		d := s.deliver(ctx, from, recipient, req.Message, sentAt, req.Files)
		if d.Error == "" {
			delivered++
		}
		result.Deliveries = append(result.Deliveries, d)
	}

	switch delivered {
	case len(recipients):
		result.Status = StatusOK
	case 0:
		result.Status = StatusFailed
		return result, ErrDeliveryFailed
	default:
		result.Status = StatusPartial
	}

	return result, nil
}

func (s *Service) deliver(ctx context.Context, from string, recipient string, body string, sentAt time.Time, files []mailbox.Attachment) Delivery {
	d := Delivery{Recipient: recipient, Attachments: []string{}}

	if err := ctx.Err(); err != nil {
		d.Error = err.Error()
		return d
	}

	msg := mailbox.Message{
		From:   from,
		SentAt: sentAt,
		Body:   body,
	}
	entry, err := s.mailbox.Deliver(ctx, recipient, msg, files)
	if err != nil {
		slog.Error("Failed to deliver message", slog.String("from", from), slog.String("to", recipient), sloki.WrapError(err))
		d.Error = err.Error()
		return d
	}

	d.Key = entry.Key.String()
	d.MessageFile = entry.Key.MessageFileName()
	d.Attachments = append(d.Attachments, entry.Message.Attachments...)

	if s.journal != nil {
		if err := s.journal.Record(from, recipient, sentAt); err != nil {
			slog.Warn("Failed to write transaction log", slog.String("to", recipient), sloki.WrapError(err))
		}
	}

	s.notifier.Notify(notify.Notification{
		From:        from,
		To:          recipient,
		Key:         d.Key,
		SentAt:      sentAt,
		Body:        body,
		Attachments: len(files),
	})

	slog.Info("Delivered message", slog.String("from", from), slog.String("to", recipient), slog.String("key", d.Key))
	return d
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
