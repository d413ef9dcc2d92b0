package mailbox

import (
	"context"
	"errors"
)

// DB persists mailbox entries. Implementations must make InsertEntry
// create-only and invisible to GetKeys until complete, and ArchiveEntry
// all-or-nothing per key.
type DB interface {
	InsertEntry(ctx context.Context, recipient string, entry Entry) error
	GetKeys(ctx context.Context, recipient string) ([]Key, error)
	GetEntry(ctx context.Context, recipient string, key Key) (*Entry, error)
	ArchiveEntry(ctx context.Context, recipient string, key Key) error
	Lock(ctx context.Context, recipient string) (func(), error)
	// PruneInbox removes attachment files left behind by an archive whose
	// bundle exists but whose cleanup failed. Callers must hold Lock.
	PruneInbox(ctx context.Context, recipient string) (int, error)
}

type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(cfg Configuration) *Store {
	return &Store{
		db: cfg.DB,
	}
}

// Deliver creates one entry in the recipient's inbox. The key is derived from
// msg.SentAt, msg.To is set to recipient and the attachment names are
// replaced by their stored file names.
func (s *Store) Deliver(ctx context.Context, recipient string, msg Message, attachments []Attachment) (*Entry, error) {
	if recipient == "" {
		return nil, errors.New("recipient is empty")
	}

	key, err := NewKey(msg.SentAt)
	if err != nil {
		return nil, err
	}

	names := attachmentFileNames(key, attachments)
	stored := make([]Attachment, len(attachments))
	for i, a := range attachments {
		stored[i] = Attachment{Name: names[i], Content: a.Content}
	}

	msg.To = recipient
	msg.SentAt = key.Timestamp
	msg.Attachments = nil
	if len(names) > 0 {
		msg.Attachments = names
	}

	entry := Entry{
		Key:         key,
		Message:     msg,
		Attachments: stored,
	}
	if err := s.db.InsertEntry(ctx, recipient, entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Pending returns the keys waiting in the recipient's inbox, oldest first.
func (s *Store) Pending(ctx context.Context, recipient string) ([]Key, error) {
	keys, err := s.db.GetKeys(ctx, recipient)
	if err != nil {
		return nil, err
	}

	SortKeys(keys)
	return keys, nil
}

func (s *Store) Get(ctx context.Context, recipient string, key Key) (*Entry, error) {
	return s.db.GetEntry(ctx, recipient, key)
}

func (s *Store) Archive(ctx context.Context, recipient string, key Key) error {
	return s.db.ArchiveEntry(ctx, recipient, key)
}

// Lock grants exclusive drain access to the recipient's inbox until the
// returned function is called.
func (s *Store) Lock(ctx context.Context, recipient string) (func(), error) {
	return s.db.Lock(ctx, recipient)
}

// Prune removes leftovers of already archived entries from the recipient's
// inbox. The caller must hold the recipient's lock.
func (s *Store) Prune(ctx context.Context, recipient string) (int, error) {
	return s.db.PruneInbox(ctx, recipient)
}
