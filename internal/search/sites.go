package search

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/links"
)

type sites struct {
	settings Settings
}

func newSites(s Settings) *sites {
	return &sites{settings: s}
}

func (s *sites) Kind() Kind { return KindSites }

// FirstRequest fetches the row's site page. Site traversal never paginates,
// so the budget is always zero.
func (s *sites) FirstRequest(row crawler.InputRow) (Request, error) {
	if err := ValidateRow(row); err != nil {
		return Request{}, err
	}
	target := strings.TrimSpace(row.Site)
	if target == "" {
		return Request{}, fmt.Errorf("row %d: %w", row.ID, errors.New("site url not set"))
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	return Request{
		Row:   row,
		Query: target,
		Fetch: crawler.FetchRequest{
			URL:     target,
			Headers: http.Header{"Accept": {"text/html,application/xhtml+xml"}},
		},
	}, nil
}

// Parse extracts PDF links from the fetched page. Hit.URL is the page the link
// was found on.
func (s *sites) Parse(req Request, resp crawler.FetchResponse) (Page, error) {
	pageURL := firstNonEmpty(resp.URL, resp.RequestURL, req.Fetch.URL)
	found, err := links.PDFLinks(resp.Body)
	if err != nil {
		return Page{}, err
	}
	page := Page{}
	for _, l := range found {
		href, err := crawler.ResolveHref(pageURL, l.Href)
		if err != nil {
			page.Skipped++
			continue
		}
		page.Hits = append(page.Hits, Hit{URL: pageURL, Href: href, Text: l.Text})
	}
	return page, nil
}

func (s *sites) NextRequest(Request, Page) (Request, bool) {
	return Request{}, false
}
