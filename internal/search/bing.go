package search

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// BingEndpoint is the Bing Web Search v7 API.
const BingEndpoint = "https://api.cognitive.microsoft.com/bing/v7.0/search"

// BingKeyHeader carries the subscription key.
const BingKeyHeader = "Ocp-Apim-Subscription-Key"

type bing struct {
	settings Settings
	mapping  FieldMapping
}

func newBing(s Settings) (*bing, error) {
	if s.BingKey == "" {
		return nil, errors.New("bing api key not set")
	}
	if s.Modifier == "" {
		return nil, errors.New("search modifier not set")
	}
	if s.Filetype == "" {
		return nil, errors.New("search filetype not set")
	}
	if err := ValidateFreshness(s.BingFreshness); err != nil {
		return nil, err
	}
	if s.BingEndpoint == "" {
		s.BingEndpoint = BingEndpoint
	}
	m, err := MappingFor(KindBing)
	if err != nil {
		return nil, err
	}
	return &bing{settings: s, mapping: m}, nil
}

func (b *bing) Kind() Kind { return KindBing }

func (b *bing) FirstRequest(row crawler.InputRow) (Request, error) {
	if err := ValidateRow(row); err != nil {
		return Request{}, err
	}
	query, err := BuildQuery(row.Keyword,
		firstNonEmpty(row.Site, b.settings.Site),
		firstNonEmpty(row.Modifier, b.settings.Modifier),
		b.settings.Filetype)
	if err != nil {
		return Request{}, fmt.Errorf("row %d: %w", row.ID, err)
	}
	req := Request{
		Row:       row,
		Query:     query,
		Remaining: depthFor(row, b.settings.Depth),
	}
	req.Fetch = b.fetchRequest(req)
	return req, nil
}

func (b *bing) fetchRequest(req Request) crawler.FetchRequest {
	params := url.Values{"q": {req.Query}}
	if f := firstNonEmpty(req.Row.Freshness, b.settings.BingFreshness); f != "" {
		params.Set("freshness", f)
	}
	if req.Cursor != "" {
		params.Set("offset", req.Cursor)
	}
	return crawler.FetchRequest{
		URL: b.settings.BingEndpoint + "?" + params.Encode(),
		Headers: http.Header{
			BingKeyHeader: {b.settings.BingKey},
			"Accept":      {"application/json"},
		},
	}
}

// Parse reads a Bing page. Bing has no explicit cursor: a non-empty mainline
// ranking means more pages exist, and the next offset is the current one plus
// the hits on this page, bounded by the estimated total.
func (b *bing) Parse(req Request, resp crawler.FetchResponse) (Page, error) {
	page, err := parseEnvelope(resp.Body, b.mapping)
	if err != nil {
		return Page{}, err
	}
	mainline := gjson.GetBytes(resp.Body, b.mapping.NextCursorPath)
	if !mainline.IsArray() || len(mainline.Array()) == 0 {
		return page, nil
	}
	returned := len(gjson.GetBytes(resp.Body, b.mapping.ResultsPath).Array())
	if returned == 0 {
		return page, nil
	}
	current, _ := strconv.Atoi(req.Cursor)
	next := current + returned
	if total, err := strconv.Atoi(page.Total); err == nil && total > 0 && next >= total {
		return page, nil
	}
	page.HasNext = true
	page.NextCursor = strconv.Itoa(next)
	return page, nil
}

func (b *bing) NextRequest(req Request, page Page) (Request, bool) {
	return advance(req, page, b.fetchRequest)
}
