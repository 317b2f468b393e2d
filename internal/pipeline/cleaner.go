package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\p{Zs}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

const blockSelector = "p, div, li, tr, pre, blockquote, h1, h2, h3, h4, h5, h6, aside"

// Clean converts post markup into normalized plain text: tags removed,
// entities decoded, NFKC applied, control characters dropped and whitespace
// collapsed. Paragraph breaks survive as single blank lines.
func Clean(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	text := content
	if strings.ContainsAny(content, "<>") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			// Image captions in cooked lightboxes repeat the filename.
			doc.Find(".lightbox-wrapper .meta").Remove()
			doc.Find("br").Each(func(_ int, s *goquery.Selection) {
				s.ReplaceWithNodes(textNode("\n"))
			})
			doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
				s.AppendNodes(textNode("\n\n"))
			})
			text = doc.Text()
		}
	}

	// Text() decodes one level of entities; encoded markdown can carry a
	// second.
	text = html.UnescapeString(text)
	text = norm.NFKC.String(text)
	text = stripControl(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

func textNode(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t' || r == '\r':
			return ' '
		case unicode.IsControl(r), r == '\u200b', r == '\ufeff':
			return -1
		}
		return r
	}, s)
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
