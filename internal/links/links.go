// Package links pulls anchor targets out of HTML pages.
package links

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is one href found on a page, in document order.
type Link struct {
	Href string
	Text string
}

// Extract returns every element carrying an href whose value contains match,
// compared case-insensitively. An empty match returns every href.
func Extract(body []byte, match string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	needle := strings.ToLower(match)
	var out []Link
	doc.Find("[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if needle != "" && !strings.Contains(strings.ToLower(href), needle) {
			return
		}
		out = append(out, Link{Href: href, Text: collapse(s.Text())})
	})
	return out, nil
}

// PDFLinks returns hrefs that look like PDF documents.
func PDFLinks(body []byte) ([]Link, error) {
	return Extract(body, "pdf")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
