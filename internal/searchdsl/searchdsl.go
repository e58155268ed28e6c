// Package searchdsl implements the search DSL shared by the interactive UI
// and the scripted CLI (spec.md §6): whitespace-separated tokens, fielded
// tokens of the form `field:value`, and a free-text fallback matched
// against from/subject/preview.
package searchdsl

import (
	"net/mail"
	"strings"
	"time"

	"github.com/hkdb/ratmail/internal/content"
	"github.com/hkdb/ratmail/internal/store"
)

// Query is a parsed search DSL expression.
type Query struct {
	From        string
	Subject     string
	To          string
	Date        string
	Since       *time.Time
	Before      *time.Time
	Attachment  string // att|file|filename
	MimeType    string // type|mime
	FreeText    []string
}

// NeedsAttachments reports whether evaluating this query requires the raw
// body's attachment inventory (spec.md §6: "att/type filters require
// attachment inventory").
func (q Query) NeedsAttachments() bool {
	return q.Attachment != "" || q.MimeType != ""
}

// dateLayouts are tried in order for since:/before: values; RFC2822 is the
// primary contract (spec.md §6), the rest are forgiving fallbacks for a
// human typing a search query interactively.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04",
	"Jan 2 2006",
	"2 Jan 2006",
}

func parseDate(value string) (time.Time, bool) {
	if t, err := mail.ParseDate(value); err == nil {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Parse tokenises expr on whitespace and resolves each token into either a
// fielded constraint or free-text (spec.md §6).
func Parse(expr string) Query {
	var q Query
	for _, tok := range strings.Fields(expr) {
		field, value, ok := splitField(tok)
		if !ok {
			q.FreeText = append(q.FreeText, tok)
			continue
		}
		switch field {
		case "att", "file", "filename":
			q.Attachment = value
		case "type", "mime":
			q.MimeType = value
		case "from":
			q.From = value
		case "subject":
			q.Subject = value
		case "to":
			q.To = value
		case "date":
			q.Date = value
		case "since":
			if t, ok := parseDate(value); ok {
				q.Since = &t
			} else {
				q.FreeText = append(q.FreeText, tok)
			}
		case "before":
			if t, ok := parseDate(value); ok {
				q.Before = &t
			} else {
				q.FreeText = append(q.FreeText, tok)
			}
		default:
			// Unknown field name: treat the whole token as free text
			// rather than silently discarding the user's input.
			q.FreeText = append(q.FreeText, tok)
		}
	}
	return q
}

// splitField splits "field:value" into its parts; returns ok=false when
// tok has no colon or the prefix isn't a recognised field name.
func splitField(tok string) (field, value string, ok bool) {
	idx := strings.Index(tok, ":")
	if idx <= 0 || idx == len(tok)-1 {
		return "", "", false
	}
	f := strings.ToLower(tok[:idx])
	switch f {
	case "att", "file", "filename", "type", "mime", "from", "subject", "to", "date", "since", "before":
		return f, tok[idx+1:], true
	default:
		return "", "", false
	}
}

// Matches reports whether summary (and, when the query needs it, the
// attachment inventory extracted from the raw body) satisfies q. Text,
// attachment and free-text comparisons are case-insensitive substring
// matches; since/before compare the message's parsed date timestamp
// (spec.md §6).
func Matches(q Query, summary store.MessageSummary, attachments []content.Attachment) bool {
	if q.From != "" && !containsFold(summary.From, q.From) {
		return false
	}
	if q.Subject != "" && !containsFold(summary.Subject, q.Subject) {
		return false
	}
	if q.To != "" && !containsFold(summary.To, q.To) {
		return false
	}
	if q.Date != "" && !containsFold(summary.Date, q.Date) {
		return false
	}
	if q.Since != nil && (summary.DateTS == nil || *summary.DateTS < q.Since.Unix()) {
		return false
	}
	if q.Before != nil && (summary.DateTS == nil || *summary.DateTS >= q.Before.Unix()) {
		return false
	}
	if q.Attachment != "" && !anyAttachmentMatches(attachments, q.Attachment, matchFilename) {
		return false
	}
	if q.MimeType != "" && !anyAttachmentMatches(attachments, q.MimeType, matchMime) {
		return false
	}
	for _, term := range q.FreeText {
		if !containsFold(summary.From, term) &&
			!containsFold(summary.Subject, term) &&
			!containsFold(summary.Preview, term) {
			return false
		}
	}
	return true
}

func matchFilename(a content.Attachment, needle string) bool {
	return containsFold(a.Filename, needle)
}

func matchMime(a content.Attachment, needle string) bool {
	return containsFold(a.ContentType, needle)
}

func anyAttachmentMatches(attachments []content.Attachment, needle string, match func(content.Attachment, string) bool) bool {
	for _, a := range attachments {
		if match(a, needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
