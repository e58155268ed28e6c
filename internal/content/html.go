package content

import (
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// blockedSentinel replaces every remote asset reference when remote policy
// is blocked (spec.md §6 "Sanitised HTML output").
const blockedSentinel = "ratmail-blocked://remote"

var htmlSanitizePolicy = buildSanitizePolicy()

// buildSanitizePolicy keeps bluemonday's standard safe-HTML tag/attribute
// set plus style, font, and background/colour attributes on font, table,
// td, body (spec.md §4.1.3).
func buildSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("style").Globally()
	p.AllowElements("font")
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowAttrs("background", "bgcolor").OnElements("table", "td", "body")
	p.AllowAttrs("src").OnElements("img")
	p.RequireParseableURLs(false)
	return p
}

var cidSrcRE = regexp.MustCompile(`(?i)(src|background)\s*=\s*(["'])cid:([^"']+)\2`)
var remoteAttrRE = regexp.MustCompile(`(?i)(src|background)\s*=\s*(["'])(https?://[^"']+)\2`)
var cssURLRE = regexp.MustCompile(`(?i)url\(\s*(['"]?)(https?://[^'")]+)\1\s*\)`)

// PrepareHTML implements spec.md §4.1.3: find the first text/html part,
// sanitise it, inline every part that declares a Content-ID, and (when
// policy is blocked) rewrite every remote src/background/CSS url()
// reference to the sentinel, counting the substitutions made.
func PrepareHTML(raw []byte, remotePolicy string) (PreparedHTML, error) {
	parts, err := walkParts(raw)
	if err != nil {
		return PreparedHTML{}, err
	}

	var htmlPart *part
	cidParts := make(map[string]*part)
	for i := range parts {
		p := &parts[i]
		if htmlPart == nil && p.ContentType == "text/html" && !isAttachmentPart(p) {
			htmlPart = p
		}
		if p.ContentID != "" {
			cidParts[p.ContentID] = p
		}
	}
	if htmlPart == nil {
		return PreparedHTML{}, fmt.Errorf("%w", ErrNoDisplayableBody)
	}

	sanitized := htmlSanitizePolicy.Sanitize(string(htmlPart.Bytes))
	inlined := inlineCIDs(sanitized, cidParts)

	blocked := 0
	if remotePolicy == "blocked" {
		inlined, blocked = blockRemote(inlined)
	}

	return PreparedHTML{HTML: inlined, BlockedRemote: blocked}, nil
}

func inlineCIDs(htmlStr string, cidParts map[string]*part) string {
	return cidSrcRE.ReplaceAllStringFunc(htmlStr, func(match string) string {
		sub := cidSrcRE.FindStringSubmatch(match)
		attr, quote, cid := sub[1], sub[2], sub[3]
		p, ok := cidParts[cid]
		if !ok {
			return match
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", p.ContentType, base64.StdEncoding.EncodeToString(p.Bytes))
		return fmt.Sprintf("%s=%s%s%s", attr, quote, dataURL, quote)
	})
}

func blockRemote(htmlStr string) (string, int) {
	count := 0
	out := remoteAttrRE.ReplaceAllStringFunc(htmlStr, func(match string) string {
		sub := remoteAttrRE.FindStringSubmatch(match)
		attr, quote := sub[1], sub[2]
		count++
		return fmt.Sprintf("%s=%s%s%s", attr, quote, blockedSentinel, quote)
	})
	out = cssURLRE.ReplaceAllStringFunc(out, func(match string) string {
		count++
		return fmt.Sprintf("url(%s)", blockedSentinel)
	})
	return out, count
}
