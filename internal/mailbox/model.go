package mailbox

import "time"

// Message is the content of one message file. To holds the recipient of the
// entry the file belongs to, not the full fan-out list.
type Message struct {
	From   string
	To     string
	SentAt time.Time
	Body   string
	// Attachments are the stored attachment file names listed in the footer.
	Attachments []string
}

type Attachment struct {
	Name    string
	Content []byte
}

// Entry is one pending delivery: a message file plus its attachments, all
// sharing Key.
type Entry struct {
	Key         Key
	Message     Message
	Attachments []Attachment
}
