package fetching

type Message struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	SentAt      string       `json:"sent_at"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment carries the stored file name and the base64 encoded content.
type Attachment struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

// Fault is an entry that could not be processed completely.
type Fault struct {
	Key string
	Err error
}

// Result of one fetch. Skipped entries were not returned and stay pending;
// Unarchived entries were returned but stay pending and will be returned
// again by a later fetch.
type Result struct {
	Agent      string
	Messages   []Message
	Skipped    []Fault
	Unarchived []Fault
}
