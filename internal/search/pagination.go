package search

import "github.com/JakeFAU/pension-crawler/internal/crawler"

// advance applies the pagination policy shared by every provider. The first
// page is free; each continuation spends one unit of the row's budget and
// requires a cursor from the provider.
func advance(req Request, page Page, build func(Request) crawler.FetchRequest) (Request, bool) {
	if !page.HasNext || page.NextCursor == "" || req.Remaining <= 0 {
		return Request{}, false
	}
	next := req
	next.Remaining = req.Remaining - 1
	next.Page = req.Page + 1
	next.Cursor = page.NextCursor
	next.Fetch = build(next)
	return next, true
}
