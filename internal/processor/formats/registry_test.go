package formats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maturion/ingest/internal/ingest"
)

func TestRegistry_Decode(t *testing.T) {
	t.Parallel()

	registry := Default()

	t.Run("plaintext verbatim", func(t *testing.T) {
		t.Parallel()
		text, err := registry.Decode("text/plain; charset=utf-8", []byte("hello world\n"))
		require.NoError(t, err)
		require.Equal(t, "hello world\n", text)
	})

	t.Run("markdown strips formatting", func(t *testing.T) {
		t.Parallel()
		src := "# Title\n\nSome **bold** text and a [link](https://example.com).\n"
		text, err := registry.Decode("text/markdown", []byte(src))
		require.NoError(t, err)
		require.Contains(t, text, "Title")
		require.Contains(t, text, "bold")
		require.Contains(t, text, "link")
		require.NotContains(t, text, "**")
		require.NotContains(t, text, "https://example.com")
	})

	t.Run("html extracts visible text", func(t *testing.T) {
		t.Parallel()
		src := `<html><head><script>var x=1;</script></head><body><p>Visible body</p></body></html>`
		text, err := registry.Decode("text/html", []byte(src))
		require.NoError(t, err)
		require.Contains(t, text, "Visible body")
		require.NotContains(t, text, "var x=1")
	})

	t.Run("pdf ascii filter recovers strings", func(t *testing.T) {
		t.Parallel()
		raw := append([]byte{0x00, 0x01, 0xff}, []byte("Annual Report 2024")...)
		raw = append(raw, 0x00, 0x7f)
		text, err := registry.Decode("application/pdf", raw)
		require.NoError(t, err)
		require.Contains(t, text, "Annual")
		require.Contains(t, text, "Report")
	})

	t.Run("unsupported type", func(t *testing.T) {
		t.Parallel()
		_, err := registry.Decode("image/png", []byte{0x89})
		require.Error(t, err)
		require.True(t, errors.Is(err, ingest.ErrUnsupportedContent))
	})
}

func TestRegistry_Supported(t *testing.T) {
	t.Parallel()

	registry := Default()
	require.True(t, registry.Supported("text/plain"))
	require.True(t, registry.Supported("application/pdf; name=x"))
	require.False(t, registry.Supported("image/jpeg"))
}

func TestASCII_DropsLetterlessTokens(t *testing.T) {
	t.Parallel()

	text, err := ASCII{}.Decode([]byte("stream 0 0 612 792 Quarterly results endstream"))
	require.NoError(t, err)
	require.Contains(t, text, "Quarterly results")
	require.NotContains(t, text, "612")
}
