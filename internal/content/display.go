package content

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	xmlhtml "golang.org/x/net/html"
)

// hrLineRE matches a line made up of three-or-more horizontal-rule
// characters only (spec.md §4.1.1).
var hrLineRE = regexp.MustCompile(`^[-_=*~—–─━·•]{3,}$`)

// urlRE is a permissive bare-URL detector for the reflowed-text link pass.
var urlRE = regexp.MustCompile(`https?://[^\s<>\[\]"']+`)

// ExtractDisplay implements spec.md §4.1.1: selects a displayable body
// (first text/plain part if multipart, else the first text/html part
// reflowed to width columns), normalises it, and extracts links from both
// the HTML (anchor scan) and the reflowed text (URL detection), in that
// precedence order.
func ExtractDisplay(raw []byte, width int) (DisplayResult, error) {
	parts, err := walkParts(raw)
	if err != nil {
		return DisplayResult{}, err
	}

	var plainPart, htmlPart *part
	for i := range parts {
		p := &parts[i]
		if isAttachmentPart(p) {
			continue
		}
		if plainPart == nil && p.ContentType == "text/plain" {
			plainPart = p
		}
		if htmlPart == nil && p.ContentType == "text/html" {
			htmlPart = p
		}
	}

	var links []Link
	var text string

	switch {
	case plainPart != nil:
		text = string(plainPart.Bytes)
	case htmlPart != nil:
		htmlStr := string(htmlPart.Bytes)
		links = append(links, extractLinksFromHTML(htmlStr)...)
		text = reflowHTML(htmlStr, width)
	default:
		return DisplayResult{}, fmt.Errorf("%w", ErrNoDisplayableBody)
	}

	text = html.UnescapeString(text)
	text = normalizeText(text)

	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		seen[l.URL] = struct{}{}
	}
	for _, u := range urlRE.FindAllString(text, -1) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		links = append(links, Link{URL: u, Label: u, FromHTML: false})
	}

	text = rewriteBracketedLinks(text)

	return DisplayResult{Text: text, Links: links}, nil
}

func isAttachmentPart(p *part) bool {
	return p.Disposition == "attachment" || p.Filename != ""
}

// normalizeText normalises line endings to LF, collapses runs of blank
// lines to at most one, and drops horizontal-rule-only lines.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if hrLineRE.MatchString(strings.TrimSpace(trimmed)) {
			continue
		}
		if strings.TrimSpace(trimmed) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// reflowHTML strips tags from html and wraps the resulting text to width
// columns, inserting blank lines between block-level elements.
func reflowHTML(htmlStr string, width int) string {
	doc, err := xmlhtml.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}

	var b strings.Builder
	var walk func(n *xmlhtml.Node)
	walk = func(n *xmlhtml.Node) {
		if n.Type == xmlhtml.ElementNode {
			switch n.DataAtom.String() {
			case "script", "style":
				return
			case "br":
				b.WriteString("\n")
			}
		}
		if n.Type == xmlhtml.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == xmlhtml.ElementNode && isBlockTag(n.DataAtom.String()) {
			b.WriteString("\n")
		}
	}
	walk(doc)

	if width <= 0 {
		return b.String()
	}
	return wrapText(b.String(), width)
}

func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "br", "tr", "table", "li", "ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
		return true
	}
	return false
}

func wrapText(s string, width int) string {
	var out strings.Builder
	for _, paragraph := range strings.Split(s, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			out.WriteString("\n")
			continue
		}
		lineLen := 0
		for i, w := range words {
			if lineLen > 0 && lineLen+1+len(w) > width {
				out.WriteString("\n")
				lineLen = 0
			} else if i > 0 && lineLen > 0 {
				out.WriteString(" ")
				lineLen++
			}
			out.WriteString(w)
			lineLen += len(w)
		}
		out.WriteString("\n")
	}
	return out.String()
}

// bracketedLinkRE matches "label [url]" or "label\n[url]" for rewriting to
// "[label]" per spec.md §4.1.1.
var bracketedLinkRE = regexp.MustCompile(`(?m)^(.*\S)[ \t]*\n?\[(https?://[^\]]+)\]$`)

func rewriteBracketedLinks(text string) string {
	return bracketedLinkRE.ReplaceAllStringFunc(text, func(match string) string {
		sub := bracketedLinkRE.FindStringSubmatch(match)
		if len(sub) != 3 {
			return match
		}
		label := strings.TrimSpace(sub[1])
		if label == "" {
			return match
		}
		return "[" + label + "]"
	})
}
