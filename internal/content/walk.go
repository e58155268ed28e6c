package content

import (
	"bytes"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// part is one leaf MIME part reached by a depth-first walk, with its body
// fully read into memory. Raw mail in this codebase is small enough (a
// single message) that this is simpler and safer than streaming.
type part struct {
	ContentType string
	Params      map[string]string
	Disposition string
	DispParams  map[string]string
	ContentID   string
	Filename    string
	Bytes       []byte
}

// walkParts parses raw MIME bytes and returns every leaf part in
// depth-first order. Multipart containers themselves are not returned,
// only their leaves, matching the "depth-first walk of MIME parts" wording
// of spec.md §4.1.2.
func walkParts(raw []byte) ([]part, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if e == nil {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMime, err)
		}
		return nil, fmt.Errorf("%w: empty message", ErrMalformedMime)
	}
	// message.IsUnknownCharset errors are non-fatal: go-message still hands
	// back best-effort decoded bytes.
	var parts []part
	if err := walkEntity(e, &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMime, err)
	}
	return parts, nil
}

func walkEntity(e *message.Entity, out *[]part) error {
	mr := e.MultipartReader()
	if mr == nil {
		return appendLeaf(e, out)
	}

	for {
		child, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := walkEntity(child, out); err != nil {
			return err
		}
	}
	return nil
}

func appendLeaf(e *message.Entity, out *[]part) error {
	body, err := io.ReadAll(e.Body)
	if err != nil {
		return err
	}

	mediaType, params, _ := e.Header.ContentType()
	disposition, dispParams, _ := e.Header.ContentDisposition()
	cid := e.Header.Get("Content-Id")

	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	*out = append(*out, part{
		ContentType: mediaType,
		Params:      params,
		Disposition: disposition,
		DispParams:  dispParams,
		ContentID:   trimAngleBrackets(cid),
		Filename:    filename,
		Bytes:       body,
	})
	return nil
}

func trimAngleBrackets(s string) string {
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}
