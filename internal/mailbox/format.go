package mailbox

import (
	"fmt"
	"strings"
	"time"
)

const (
	headerMarker = "=== HEADER ==="
	footerMarker = "=== FOOTER ==="
)

// Encode renders a message file. The body is written verbatim between two
// blank separator lines so Parse can return it unchanged.
func Encode(m Message) []byte {
	lines := []string{
		headerMarker,
		"from: " + m.From,
		"to: " + m.To,
		"sent_at: " + FormatSentAt(m.SentAt),
		"",
		m.Body,
		"",
		footerMarker,
	}

	if len(m.Attachments) > 0 {
		lines = append(lines, "attachments:")
		for _, name := range m.Attachments {
			lines = append(lines, "- "+name)
		}
	} else {
		lines = append(lines, fmt.Sprintf("reply_url: /messages?from=%s&to=%s", m.To, m.From))
	}

	return []byte(strings.Join(lines, "\n") + "\n")
}

// Parse reads a message file. The header starts at the first header marker
// and ends at the first blank line; the footer starts at the last footer
// marker, so marker look-alikes inside the body are kept as body text.
// Attachment references are returned as written.
func Parse(data []byte) (Message, error) {
	lines := strings.Split(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	headerIdx, footerIdx := -1, -1
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == headerMarker && headerIdx < 0 {
			headerIdx = i
		}
		if line == footerMarker {
			footerIdx = i
		}
	}
	if headerIdx < 0 || footerIdx < 0 || footerIdx < headerIdx {
		return Message{}, fmt.Errorf("%w: missing header or footer marker", ErrMalformedMessage)
	}

	header := map[string]string{}
	bodyStart := -1
	for i := headerIdx + 1; i < footerIdx; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			bodyStart = i + 1
			break
		}
		if key, value, ok := strings.Cut(line, ":"); ok {
			header[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	if bodyStart < 0 {
		return Message{}, fmt.Errorf("%w: header is not terminated", ErrMalformedMessage)
	}

	bodyLines := lines[bodyStart:footerIdx]
	if n := len(bodyLines); n > 0 && strings.TrimSuffix(bodyLines[n-1], "\r") == "" {
		bodyLines = bodyLines[:n-1]
	}

	m := Message{
		From: header["from"],
		To:   header["to"],
		Body: strings.Join(bodyLines, "\n"),
	}
	if m.From == "" || m.To == "" {
		return Message{}, fmt.Errorf("%w: missing from or to", ErrMalformedMessage)
	}

	sentAt, err := time.Parse(time.RFC3339, header["sent_at"])
	if err != nil {
		return Message{}, fmt.Errorf("%w: invalid sent_at %q", ErrMalformedMessage, header["sent_at"])
	}
	m.SentAt = sentAt.UTC()

	for _, line := range lines[footerIdx+1:] {
		line = strings.TrimSpace(line)
		if ref, ok := strings.CutPrefix(line, "- "); ok {
			if ref = strings.TrimSpace(ref); ref != "" {
				m.Attachments = append(m.Attachments, ref)
			}
		}
	}

	return m, nil
}

func FormatSentAt(t time.Time) string {
	return t.UTC().Format(SentAtLayout)
}
