package sending

import "github.com/OliverSchlueter/openack/internal/mailbox"

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

type Request struct {
	From    string
	To      []string
	Message string
	Files   []mailbox.Attachment
}

type Result struct {
	Status     string     `json:"status"`
	From       string     `json:"from"`
	To         []string   `json:"to"`
	SentAt     string     `json:"sent_at"`
	Deliveries []Delivery `json:"deliveries"`
}

// Delivery reports the outcome for one recipient. Error is empty on success.
type Delivery struct {
	Recipient   string   `json:"recipient"`
	Key         string   `json:"key,omitempty"`
	MessageFile string   `json:"message_file,omitempty"`
	Attachments []string `json:"attachments"`
	Error       string   `json:"error,omitempty"`
}
