package content

import (
	"fmt"

	"github.com/teamwork/tnef"
)

const defaultAttachmentFilename = "attachment"

// attachmentEntry pairs an Attachment with its own byte payload, so that a
// TNEF envelope's nested files — which have no part of their own in the
// depth-first walk — each still get distinct, independently fetchable
// bytes instead of sharing the envelope's raw winmail.dat bytes.
type attachmentEntry struct {
	Attachment
	Bytes []byte
}

// collectAttachments walks raw once and returns every attachment leaf in
// order, assigning Index sequentially over this result list (not over the
// underlying MIME parts) so ExtractAttachments and ExtractAttachmentData
// agree on what "index" means even when one TNEF part expands into several
// attachments (spec.md §4.1.2; SPEC_FULL.md §5.1 TNEF supplement).
func collectAttachments(raw []byte) ([]attachmentEntry, error) {
	parts, err := walkParts(raw)
	if err != nil {
		return nil, err
	}

	var out []attachmentEntry
	for _, p := range parts {
		if !isAttachmentPart(&p) {
			continue
		}

		if isTNEF(p.ContentType, p.Filename) {
			nested, err := unpackTNEF(p.Bytes)
			if err == nil {
				for _, n := range nested {
					n.Index = len(out)
					out = append(out, n)
				}
				continue
			}
			// fall through: surface the raw TNEF blob itself on decode failure
		}

		filename := p.Filename
		if filename == "" {
			filename = defaultAttachmentFilename
		}
		out = append(out, attachmentEntry{
			Attachment: Attachment{
				Index:       len(out),
				Filename:    filename,
				ContentType: p.ContentType,
				Size:        len(p.Bytes),
			},
			Bytes: p.Bytes,
		})
	}
	return out, nil
}

// ExtractAttachments returns the attachment inventory for raw MIME bytes:
// a depth-first walk of parts where a leaf is an attachment when its
// content-disposition is "attachment" or it carries any filename parameter
// (spec.md §4.1.2). TNEF (winmail.dat) parts are unpacked so their nested
// attachments also surface (SPEC_FULL.md §5.1 supplement).
func ExtractAttachments(raw []byte) ([]Attachment, error) {
	entries, err := collectAttachments(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Attachment, len(entries))
	for i, e := range entries {
		out[i] = e.Attachment
	}
	return out, nil
}

// ExtractAttachmentData returns the bytes of the attachment at index
// (as reported by ExtractAttachments).
func ExtractAttachmentData(raw []byte, index int) ([]byte, error) {
	entries, err := collectAttachments(raw)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(entries) {
		return nil, fmt.Errorf("%w: index %d", ErrAttachmentIndexOutOfRange, index)
	}
	return entries[index].Bytes, nil
}

func isTNEF(contentType, filename string) bool {
	return contentType == "application/ms-tnef" || contentType == "application/vnd.ms-tnef" || filename == "winmail.dat"
}

func unpackTNEF(raw []byte) ([]attachmentEntry, error) {
	data, err := tnef.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tnef: %w", err)
	}

	out := make([]attachmentEntry, 0, len(data.Attachments))
	for _, a := range data.Attachments {
		filename := string(a.Title)
		if filename == "" {
			filename = defaultAttachmentFilename
		}
		out = append(out, attachmentEntry{
			Attachment: Attachment{
				Filename:    filename,
				ContentType: "application/octet-stream",
				Size:        len(a.Data),
			},
			Bytes: a.Data,
		})
	}
	return out, nil
}
