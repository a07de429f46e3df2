// Package formats decodes uploaded file bytes into plain text per MIME type.
// Each decoder knows one family of content types; the registry routes by the
// normalized media type.
package formats

import (
	"fmt"
	"mime"
	"strings"

	"github.com/maturion/ingest/internal/ingest"
)

// Decoder extracts plain text from one document format.
type Decoder interface {
	// MIMETypes returns the media types this decoder handles.
	MIMETypes() []string
	Decode(data []byte) (string, error)
}

// Registry routes content types to decoders.
type Registry struct {
	byType map[string]Decoder
}

// NewRegistry builds a registry from the given decoders. Later decoders win
// on media type collisions.
func NewRegistry(decoders ...Decoder) *Registry {
	r := &Registry{byType: make(map[string]Decoder)}
	for _, d := range decoders {
		for _, mt := range d.MIMETypes() {
			r.byType[strings.ToLower(mt)] = d
		}
	}
	return r
}

// Default returns a registry covering plain text, Markdown, HTML, and the
// crude PDF/DOCX byte filters.
func Default() *Registry {
	return NewRegistry(
		Plaintext{},
		Markdown{},
		HTML{},
		ASCII{},
	)
}

// Supported reports whether the content type has a decoder.
func (r *Registry) Supported(contentType string) bool {
	_, ok := r.byType[normalize(contentType)]
	return ok
}

// Decode extracts text from data according to contentType. Unknown types
// return ErrUnsupportedContent.
func (r *Registry) Decode(contentType string, data []byte) (string, error) {
	mt := normalize(contentType)
	decoder, ok := r.byType[mt]
	if !ok {
		return "", fmt.Errorf("%w: %q", ingest.ErrUnsupportedContent, contentType)
	}
	text, err := decoder.Decode(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", mt, err)
	}
	return text, nil
}

func normalize(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
