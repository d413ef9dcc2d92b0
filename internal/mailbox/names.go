package mailbox

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultAttachmentName = "attachment.bin"

// SanitizeAttachmentName reduces an uploaded file name to a base name that is
// safe to use inside an inbox directory and inside a footer line.
func SanitizeAttachmentName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))

	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." || name == "/" {
		return defaultAttachmentName
	}
	return name
}

// attachmentFileNames returns the stored file name for every attachment of
// one entry. Duplicate names get a numeric suffix before the extension.
func attachmentFileNames(key Key, attachments []Attachment) []string {
	seen := make(map[string]bool, len(attachments))
	names := make([]string, 0, len(attachments))

	for _, a := range attachments {
		name := SanitizeAttachmentName(a.Name)
		if seen[name] {
			ext := filepath.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			for i := 2; ; i++ {
				candidate := stem + "-" + strconv.Itoa(i) + ext
				if !seen[candidate] {
					name = candidate
					break
				}
			}
		}
		seen[name] = true
		names = append(names, key.AttachmentFileName(name))
	}

	return names
}
