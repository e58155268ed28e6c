// Package content implements the content-extraction pass (C1): display
// text + links, attachment inventory, and prepared (sanitised, CID-inlined,
// remote-blocked) HTML, derived from a raw MIME blob.
//
// Grounded on original_source/crates/ratmail-content/src/lib.rs, translated
// to Go idiom over github.com/emersion/go-message rather than transliterated.
package content

import "errors"

// Link is one extracted hyperlink.
type Link struct {
	URL      string
	Label    string
	FromHTML bool
}

// Attachment is one non-inline MIME part's metadata.
type Attachment struct {
	// Index is the attachment's position in the list ExtractAttachments
	// returns, used to fetch its bytes later via ExtractAttachmentData. A
	// TNEF envelope expands into several attachments that share no MIME
	// part, so this is not the depth-first part position.
	Index       int
	Filename    string
	ContentType string
	Size        int
}

// DisplayResult is the output of ExtractDisplay.
type DisplayResult struct {
	Text  string
	Links []Link
}

// PreparedHTML is the output of PrepareHTML.
type PreparedHTML struct {
	HTML          string
	BlockedRemote int
}

// Sentinel errors per spec.md §9's "exception-style control flow" redesign
// note: content extraction failures are modelled as typed error values, not
// panics.
var (
	ErrMalformedMime             = errors.New("malformed mime")
	ErrNoDisplayableBody         = errors.New("no displayable body found")
	ErrAttachmentIndexOutOfRange = errors.New("attachment index out of range")
)
