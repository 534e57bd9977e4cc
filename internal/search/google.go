package search

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// GoogleEndpoint is the Custom Search JSON API.
const GoogleEndpoint = "https://www.googleapis.com/customsearch/v1"

type google struct {
	settings Settings
	mapping  FieldMapping
}

func newGoogle(s Settings) (*google, error) {
	if s.GoogleKey == "" {
		return nil, errors.New("google api key not set")
	}
	if s.GoogleEngineID == "" {
		return nil, errors.New("google search engine id not set")
	}
	if s.Modifier == "" {
		return nil, errors.New("search modifier not set")
	}
	if s.Filetype == "" {
		return nil, errors.New("search filetype not set")
	}
	if err := ValidateDate(s.GoogleStartDate); err != nil {
		return nil, fmt.Errorf("start date: %w", err)
	}
	if err := ValidateDate(s.GoogleEndDate); err != nil {
		return nil, fmt.Errorf("end date: %w", err)
	}
	if s.GoogleEndpoint == "" {
		s.GoogleEndpoint = GoogleEndpoint
	}
	m, err := MappingFor(KindGoogle)
	if err != nil {
		return nil, err
	}
	return &google{settings: s, mapping: m}, nil
}

func (g *google) Kind() Kind { return KindGoogle }

func (g *google) FirstRequest(row crawler.InputRow) (Request, error) {
	if err := ValidateRow(row); err != nil {
		return Request{}, err
	}
	query, err := BuildQuery(row.Keyword,
		firstNonEmpty(row.Site, g.settings.Site),
		firstNonEmpty(row.Modifier, g.settings.Modifier),
		g.settings.Filetype)
	if err != nil {
		return Request{}, fmt.Errorf("row %d: %w", row.ID, err)
	}
	req := Request{
		Row:       row,
		Query:     query,
		Remaining: depthFor(row, g.settings.Depth),
	}
	req.Fetch = g.fetchRequest(req)
	return req, nil
}

func (g *google) fetchRequest(req Request) crawler.FetchRequest {
	params := url.Values{
		"cx":  {g.settings.GoogleEngineID},
		"key": {g.settings.GoogleKey},
		"q":   {req.Query},
	}
	start := firstNonEmpty(req.Row.StartDate, g.settings.GoogleStartDate)
	end := firstNonEmpty(req.Row.EndDate, g.settings.GoogleEndDate)
	if start != "" || end != "" {
		params.Set("sort", fmt.Sprintf("date:r:%s:%s", start, end))
	}
	if req.Cursor != "" {
		params.Set("start", req.Cursor)
	}
	return crawler.FetchRequest{
		URL:     g.settings.GoogleEndpoint + "?" + params.Encode(),
		Headers: http.Header{"Accept": {"application/json"}},
	}
}

func (g *google) Parse(_ Request, resp crawler.FetchResponse) (Page, error) {
	page, err := parseEnvelope(resp.Body, g.mapping)
	if err != nil {
		return Page{}, err
	}
	if next := gjson.GetBytes(resp.Body, g.mapping.NextCursorPath); next.Exists() && next.Int() > 0 {
		page.HasNext = true
		page.NextCursor = next.String()
	}
	return page, nil
}

func (g *google) NextRequest(req Request, page Page) (Request, bool) {
	return advance(req, page, g.fetchRequest)
}
