package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTagRegex  = regexp.MustCompile(`<[^>]*>`)
	htmlHintRegex = regexp.MustCompile(`(?i)<(html|body|div|p|br|table|tr|td|li|span|a|h[1-6])\b`)
)

// Elements that end a visual line in notification emails.
const blockSelectors = "p, div, tr, td, th, li, h1, h2, h3, h4, h5, h6, table, section, article"

// bodyLines converts a notification body (plain text or HTML) into trimmed,
// non-empty lines with entities unescaped and inner whitespace collapsed.
func bodyLines(body string) []string {
	text := body
	if htmlHintRegex.MatchString(body) {
		text = flattenHTML(body)
	}
	text = html.UnescapeString(text)

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.Join(strings.Fields(raw), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// flattenHTML renders an HTML document as text with one line per block
// element. Falls back to tag stripping if the document cannot be parsed.
func flattenHTML(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return htmlTagRegex.ReplaceAllString(body, "\n")
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return doc.Text()
}

// plainText returns the body as plain text, one block per line.
func plainText(body string) string {
	return strings.Join(bodyLines(body), "\n")
}
