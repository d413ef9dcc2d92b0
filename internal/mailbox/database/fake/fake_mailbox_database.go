package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/OliverSchlueter/openack/internal/mailbox"
)

// DB keeps mailboxes in memory. InsertErrors and ArchiveErrors inject
// failures per recipient and per key string.
type DB struct {
	Inboxes       map[string][]mailbox.Entry
	Done          map[string][]mailbox.Entry
	InsertErrors  map[string]error
	ArchiveErrors map[string]error
	mu            sync.Mutex
	locks         *mailbox.AgentLocks
}

func NewDB() *DB {
	return &DB{
		Inboxes:       map[string][]mailbox.Entry{},
		Done:          map[string][]mailbox.Entry{},
		InsertErrors:  map[string]error{},
		ArchiveErrors: map[string]error{},
		mu:            sync.Mutex{},
		locks:         mailbox.NewAgentLocks(),
	}
}

func (db *DB) InsertEntry(ctx context.Context, recipient string, entry mailbox.Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.InsertErrors[recipient]; err != nil {
		return err
	}

	for _, existing := range db.Inboxes[recipient] {
		if existing.Key.Compare(entry.Key) == 0 {
			return fmt.Errorf("%w: %s", mailbox.ErrEntryExists, entry.Key)
		}
	}

	db.Inboxes[recipient] = append(db.Inboxes[recipient], entry)
	return nil
}

func (db *DB) GetKeys(ctx context.Context, recipient string) ([]mailbox.Key, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var keys []mailbox.Key
	for _, entry := range db.Inboxes[recipient] {
		keys = append(keys, entry.Key)
	}
	return keys, nil
}

func (db *DB) GetEntry(ctx context.Context, recipient string, key mailbox.Key) (*mailbox.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, entry := range db.Inboxes[recipient] {
		if entry.Key.Compare(key) == 0 {
			return &entry, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", mailbox.ErrEntryNotFound, key)
}

func (db *DB) ArchiveEntry(ctx context.Context, recipient string, key mailbox.Key) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.ArchiveErrors[key.String()]; err != nil {
		return err
	}

	for i, entry := range db.Inboxes[recipient] {
		if entry.Key.Compare(key) == 0 {
			db.Inboxes[recipient] = append(db.Inboxes[recipient][:i], db.Inboxes[recipient][i+1:]...)
			db.Done[recipient] = append(db.Done[recipient], entry)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", mailbox.ErrEntryNotFound, key)
}

func (db *DB) Lock(ctx context.Context, recipient string) (func(), error) {
	return db.locks.Acquire(ctx, recipient)
}

// PruneInbox has nothing to do, archived entries never leave parts behind in
// memory.
func (db *DB) PruneInbox(ctx context.Context, recipient string) (int, error) {
	return 0, ctx.Err()
}
