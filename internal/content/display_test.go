package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainMessage(body string) []byte {
	msg := "From: a@example.com\r\n" +
		"To: b@example.com\r\n" +
		"Subject: test\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" + body
	return []byte(msg)
}

func multipartMessage(plain, html string) []byte {
	boundary := "BOUNDARY123"
	var b strings.Builder
	b.WriteString("From: a@example.com\r\n")
	b.WriteString("To: b@example.com\r\n")
	b.WriteString("Subject: test\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(plain + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(html + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}

func TestExtractDisplayPrefersPlainPart(t *testing.T) {
	raw := multipartMessage("hello plain", "<p>hello html</p>")
	result, err := ExtractDisplay(raw, 80)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "hello plain")
}

func TestExtractDisplayFallsBackToHTML(t *testing.T) {
	raw := []byte("From: a@example.com\r\nTo: b@example.com\r\nSubject: t\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n<p>Hi there</p><a href=\"https://example.com/x\">link</a>")
	result, err := ExtractDisplay(raw, 80)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Hi there")
	require.Len(t, result.Links, 1)
	assert.Equal(t, "https://example.com/x", result.Links[0].URL)
	assert.True(t, result.Links[0].FromHTML)
}

func TestExtractDisplayNoBodyReturnsError(t *testing.T) {
	raw := []byte("From: a@example.com\r\nTo: b@example.com\r\nSubject: t\r\n" +
		"Content-Type: application/pdf\r\nContent-Disposition: attachment; filename=a.pdf\r\n\r\n%PDF-1.4")
	_, err := ExtractDisplay(raw, 80)
	assert.ErrorIs(t, err, ErrNoDisplayableBody)
}

func TestExtractDisplayCollapsesBlankLinesAndHR(t *testing.T) {
	raw := plainMessage("line one\r\n\r\n\r\n\r\nline two\r\n---\r\nline three")
	result, err := ExtractDisplay(raw, 80)
	require.NoError(t, err)
	assert.NotContains(t, result.Text, "\n\n\n")
	assert.NotContains(t, result.Text, "---")
}

func TestExtractDisplayDetectsBareURLInPlainText(t *testing.T) {
	raw := plainMessage("see https://example.com/report for details")
	result, err := ExtractDisplay(raw, 80)
	require.NoError(t, err)
	require.Len(t, result.Links, 1)
	assert.Equal(t, "https://example.com/report", result.Links[0].URL)
	assert.False(t, result.Links[0].FromHTML)
}

func TestExtractAttachmentsSkipsBodyParts(t *testing.T) {
	boundary := "B2"
	var b strings.Builder
	b.WriteString("From: a@example.com\r\nTo: b@example.com\r\nSubject: t\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n\r\n")
	b.WriteString("--" + boundary + "\r\nContent-Type: text/plain\r\n\r\nbody text\r\n")
	b.WriteString("--" + boundary + "\r\nContent-Type: application/pdf\r\nContent-Disposition: attachment; filename=report.pdf\r\n\r\n%PDF-data\r\n")
	b.WriteString("--" + boundary + "--\r\n")

	atts, err := ExtractAttachments([]byte(b.String()))
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "report.pdf", atts[0].Filename)
	assert.Equal(t, "application/pdf", atts[0].ContentType)
}

func TestExtractAttachmentDataOutOfRange(t *testing.T) {
	raw := plainMessage("hi")
	_, err := ExtractAttachmentData(raw, 99)
	assert.ErrorIs(t, err, ErrAttachmentIndexOutOfRange)
}
