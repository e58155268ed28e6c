package content

import (
	"strings"

	"golang.org/x/net/html"
)

// extractLinksFromHTML scans htmlStr for anchor tags and builds a Link for
// each, resolving the label by the precedence chain from spec.md §4.1.1:
// inner text -> tag aria-label -> tag title -> inner alt -> inner title.
func extractLinksFromHTML(htmlStr string) []Link {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}

	var links []Link
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if l, ok := linkFromAnchor(n); ok {
				links = append(links, l)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func linkFromAnchor(a *html.Node) (Link, bool) {
	href := attr(a, "href")
	if href == "" {
		return Link{}, false
	}

	innerText := strings.TrimSpace(innerText(a))
	ariaLabel := attr(a, "aria-label")
	title := attr(a, "title")
	innerAlt, innerTitle := innerImgAttrs(a)

	label := innerText
	if label == "" {
		label = ariaLabel
	}
	if label == "" {
		label = title
	}
	if label == "" {
		label = innerAlt
	}
	if label == "" {
		label = innerTitle
	}
	if label == "" {
		label = href
	}

	return Link{URL: href, Label: label, FromHTML: true}, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func innerImgAttrs(n *html.Node) (alt, title string) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			if alt == "" {
				alt = attr(n, "alt")
			}
			if title == "" {
				title = attr(n, "title")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return alt, title
}
