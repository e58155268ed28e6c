package smtpsend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRFC822_PlainText(t *testing.T) {
	msg := &ComposeMessage{
		From:     Address{Name: "Alice", Address: "alice@example.com"},
		To:       []Address{{Address: "bob@example.com"}},
		Subject:  "Hello",
		TextBody: "hi there",
	}

	raw, err := msg.ToRFC822()
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "From: Alice <alice@example.com>")
	assert.Contains(t, s, "To: bob@example.com")
	assert.Contains(t, s, "Subject: Hello")
	assert.Contains(t, s, "Content-Type: text/plain; charset=utf-8")
}

func TestToRFC822_HTMLAndText(t *testing.T) {
	msg := &ComposeMessage{
		From:     Address{Address: "alice@example.com"},
		To:       []Address{{Address: "bob@example.com"}},
		Subject:  "Hi",
		TextBody: "plain body",
		HTMLBody: "<p>html body</p>",
	}

	raw, err := msg.ToRFC822()
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "multipart/alternative")
	assert.Contains(t, s, "plain body")
}

func TestToRFC822_WithAttachment(t *testing.T) {
	msg := &ComposeMessage{
		From:     Address{Address: "alice@example.com"},
		To:       []Address{{Address: "bob@example.com"}},
		Subject:  "Files",
		TextBody: "see attached",
		Attachments: []Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4 fake")},
		},
	}

	raw, err := msg.ToRFC822()
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "multipart/mixed")
	assert.Contains(t, s, `filename="report.pdf"`)
	assert.Contains(t, s, "Content-Transfer-Encoding: base64")
}

func TestAllRecipients(t *testing.T) {
	msg := &ComposeMessage{
		To:  []Address{{Address: "a@example.com"}},
		Cc:  []Address{{Address: "b@example.com"}},
		Bcc: []Address{{Address: "c@example.com"}},
	}
	got := msg.AllRecipients()
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, got)
}

func TestAddressString_EncodesUnicodeName(t *testing.T) {
	addr := Address{Name: "Jörg", Address: "jorg@example.com"}
	got := addr.String()
	assert.True(t, strings.Contains(got, "=?utf-8?") || strings.Contains(got, "Jörg"))
	assert.Contains(t, got, "<jorg@example.com>")
}
