package mailbox

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyTimestampLayout = "2006-01-02T15:04:05Z"

	// SentAtLayout is the sent_at header format, e.g. 2026-02-13T02:15:26+00:00.
	SentAtLayout = "2006-01-02T15:04:05-07:00"
)

// Key identifies a mailbox entry: a second-precision UTC timestamp and a
// unique id. The id is the hex form of a UUIDv7, so ids generated later by the
// same process compare greater even within one second.
type Key struct {
	Timestamp time.Time
	ID        string
}

func NewKey(t time.Time) (Key, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Key{}, fmt.Errorf("could not generate key id: %w", err)
	}

	return Key{
		Timestamp: t.UTC().Truncate(time.Second),
		ID:        hex.EncodeToString(id[:]),
	}, nil
}

func ParseKey(s string) (Key, error) {
	n := len(keyTimestampLayout)
	if len(s) < n+2 || s[n] != '-' {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	ts, err := time.Parse(keyTimestampLayout, s[:n])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	id := s[n+1:]
	for _, r := range id {
		if !isAlnum(r) {
			return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
		}
	}

	return Key{Timestamp: ts.UTC(), ID: id}, nil
}

func (k Key) String() string {
	return k.Timestamp.UTC().Format(keyTimestampLayout) + "-" + k.ID
}

// Compare orders keys by timestamp, then by id.
func (k Key) Compare(other Key) int {
	if c := k.Timestamp.Compare(other.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(k.ID, other.ID)
}

func SortKeys(keys []Key) {
	slices.SortFunc(keys, Key.Compare)
}

func (k Key) MessageFileName() string {
	return k.String() + ".md"
}

func (k Key) BundleFileName() string {
	return k.String() + ".zip"
}

func (k Key) AttachmentFileName(name string) string {
	return k.String() + "-" + name
}

// KeyFromAttachmentFileName returns the key prefix of a name built by
// AttachmentFileName.
func KeyFromAttachmentFileName(name string) (Key, bool) {
	n := len(keyTimestampLayout)
	if len(name) < n+2 || name[n] != '-' {
		return Key{}, false
	}

	i := strings.IndexByte(name[n+1:], '-')
	if i <= 0 || n+2+i == len(name) {
		return Key{}, false
	}

	key, err := ParseKey(name[:n+1+i])
	if err != nil {
		return Key{}, false
	}
	return key, true
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
