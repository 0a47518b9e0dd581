package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// richTextPolicy keeps only the markup channels render as rich text.
var richTextPolicy = newRichTextPolicy()

func newRichTextPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "u", "s", "code", "pre")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto", "tg")
	p.RequireParseableURLs(true)
	return p
}

// Sanitize strips every tag outside the rich-text allow-list. Text is kept
// and entity-escaped, so applying it twice yields the same result.
func Sanitize(s string) string {
	return richTextPolicy.Sanitize(s)
}

// PlainText strips markup from an HTML fragment and collapses whitespace.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return CollapseSpaces(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CollapseSpaces(s)
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	return CollapseSpaces(strings.Join(parts, " "))
}

// CollapseSpaces trims s and folds every whitespace run into a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes cuts s to at most limit runes.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// VisibleLength counts the runes of text a rich-text fragment renders to.
func VisibleLength(s string) int {
	z := html.NewTokenizer(strings.NewReader(s))
	n := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return n
		case html.TextToken:
			n += len([]rune(string(z.Text())))
		}
	}
}

// TruncateHTML cuts a rich-text fragment to at most limit visible runes,
// closing any tag left open by the cut.
func TruncateHTML(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if VisibleLength(s) <= limit {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	var open []string
	count := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return closeTags(&b, open)
		case html.TextToken:
			runes := []rune(string(z.Text()))
			if count+len(runes) >= limit {
				b.WriteString(html.EscapeString(string(runes[:limit-count])))
				return closeTags(&b, open)
			}
			count += len(runes)
			b.WriteString(html.EscapeString(string(runes)))
		case html.StartTagToken:
			name, _ := z.TagName()
			open = append(open, string(name))
			b.Write(z.Raw())
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(open) - 1; i >= 0; i-- {
				if open[i] == string(name) {
					open = append(open[:i], open[i+1:]...)
					break
				}
			}
			b.Write(z.Raw())
		case html.SelfClosingTagToken:
			b.Write(z.Raw())
		}
	}
}

func closeTags(b *strings.Builder, open []string) string {
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return b.String()
}
