package searchdsl

import (
	"testing"

	"github.com/hkdb/ratmail/internal/content"
	"github.com/hkdb/ratmail/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldedTokens(t *testing.T) {
	q := Parse("from:alice@example.com subject:invoice hello world")
	assert.Equal(t, "alice@example.com", q.From)
	assert.Equal(t, "invoice", q.Subject)
	assert.Equal(t, []string{"hello", "world"}, q.FreeText)
}

func TestParseAttachmentFields(t *testing.T) {
	q := Parse("att:report.pdf type:application/pdf")
	assert.Equal(t, "report.pdf", q.Attachment)
	assert.Equal(t, "application/pdf", q.MimeType)
	assert.True(t, q.NeedsAttachments())
}

func TestParseSinceBefore(t *testing.T) {
	q := Parse("since:2024-01-01 before:2024-06-01")
	require.NotNil(t, q.Since)
	require.NotNil(t, q.Before)
	assert.True(t, q.Since.Before(*q.Before))
}

func TestParseUnknownFieldIsFreeText(t *testing.T) {
	q := Parse("bogus:value")
	assert.Equal(t, []string{"bogus:value"}, q.FreeText)
}

func TestMatchesFreeTextAgainstFromSubjectPreview(t *testing.T) {
	summary := store.MessageSummary{From: "Alice <a@x.com>", Subject: "Quarterly Report", Preview: "see attached"}

	assert.True(t, Matches(Parse("quarterly"), summary, nil))
	assert.True(t, Matches(Parse("attached"), summary, nil))
	assert.False(t, Matches(Parse("nonexistent"), summary, nil))
}

func TestMatchesAttachmentFilter(t *testing.T) {
	summary := store.MessageSummary{Subject: "Files"}
	atts := []content.Attachment{{Filename: "report.pdf", ContentType: "application/pdf"}}

	assert.True(t, Matches(Parse("att:report"), summary, atts))
	assert.False(t, Matches(Parse("att:spreadsheet"), summary, atts))
	assert.True(t, Matches(Parse("type:pdf"), summary, atts))
}

func TestMatchesDateBounds(t *testing.T) {
	ts := int64(1700000000)
	summary := store.MessageSummary{DateTS: &ts}

	before := Parse("before:2024-01-01")
	since := Parse("since:2023-01-01")
	assert.True(t, Matches(before, summary, nil))
	assert.True(t, Matches(since, summary, nil))

	tooLate := Parse("since:2024-01-01")
	assert.False(t, Matches(tooLate, summary, nil))
}
