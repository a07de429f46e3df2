package formats

import (
	"regexp"
	"strings"

	"github.com/maturion/ingest/internal/extract"
)

// Plaintext passes text files through unchanged, minus invalid UTF-8.
type Plaintext struct{}

// MIMETypes implements Decoder.
func (Plaintext) MIMETypes() []string {
	return []string{"text/plain", "text/csv"}
}

// Decode implements Decoder.
func (Plaintext) Decode(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), ""), nil
}

// Markdown reads Markdown verbatim with formatting markers simplified away.
type Markdown struct{}

var (
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis  = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+)(\*{1,3}|_{1,3})`)
	mdCodeFence = regexp.MustCompile("(?m)^```[^\n]*$")
	mdInline    = regexp.MustCompile("`([^`]*)`")
)

// MIMETypes implements Decoder.
func (Markdown) MIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Decode implements Decoder.
func (Markdown) Decode(data []byte) (string, error) {
	text := strings.ToValidUTF8(string(data), "")
	text = mdCodeFence.ReplaceAllString(text, "")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdEmphasis.ReplaceAllString(text, "$2")
	text = mdInline.ReplaceAllString(text, "$1")
	return text, nil
}

// HTML decodes markup through the shared goquery extractor.
type HTML struct{}

// MIMETypes implements Decoder.
func (HTML) MIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Decode implements Decoder.
func (HTML) Decode(data []byte) (string, error) {
	content, err := extract.HTML(data, "", 0)
	if err != nil {
		return "", err
	}
	return content.Text, nil
}

// ASCII is the crude byte filter used for PDF and DOCX payloads. It keeps
// printable ASCII runs and discards tokens that carry no letters, which
// recovers embedded text strings but is not real format parsing.
type ASCII struct{}

// MIMETypes implements Decoder.
func (ASCII) MIMETypes() []string {
	return []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Decode implements Decoder.
func (ASCII) Decode(data []byte) (string, error) {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 0x20 && c <= 0x7e {
			b.WriteByte(c)
		} else {
			b.WriteByte(' ')
		}
	}

	var words []string
	for _, tok := range strings.Fields(b.String()) {
		if hasLetter(tok) {
			words = append(words, tok)
		}
	}
	return strings.Join(words, " "), nil
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
