package search

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// Kind names a result provider.
type Kind string

// Supported providers.
const (
	KindGoogle Kind = "google"
	KindBing   Kind = "bing"
	KindSites  Kind = "sites"
)

// ParseKind maps a configured provider name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindGoogle, KindBing, KindSites:
		return k, nil
	default:
		return "", fmt.Errorf("unknown provider %q", name)
	}
}

// IsSearch reports whether k is a search-engine provider rather than site
// traversal.
func (k Kind) IsSearch() bool {
	return k == KindGoogle || k == KindBing
}

// Settings carries the provider knobs resolved at configuration time.
type Settings struct {
	Modifier string
	Filetype string
	Depth    int
	Site     string

	GoogleKey       string
	GoogleEngineID  string
	GoogleStartDate string
	GoogleEndDate   string
	GoogleEndpoint  string

	BingKey       string
	BingFreshness string
	BingEndpoint  string
}

// Request is one page request in a row's pagination chain.
type Request struct {
	Row       crawler.InputRow
	Query     string
	Remaining int
	Page      int
	Cursor    string
	Fetch     crawler.FetchRequest
}

// Hit is one result node read from a response.
type Hit struct {
	URL     string
	Title   string
	Snippet string
	Href    string
	Text    string
}

// Page is a parsed response.
type Page struct {
	Keyword    string
	Total      string
	Hits       []Hit
	Skipped    int
	NextCursor string
	HasNext    bool
}

// Strategy is implemented by each provider.
type Strategy interface {
	Kind() Kind
	FirstRequest(row crawler.InputRow) (Request, error)
	Parse(req Request, resp crawler.FetchResponse) (Page, error)
	NextRequest(req Request, page Page) (Request, bool)
}

// FieldMapping names the envelope paths a JSON provider exposes.
type FieldMapping struct {
	ResultsPath    string
	LinkField      string
	TitleField     string
	SnippetField   string
	TotalPath      string
	QueryPath      string
	NextCursorPath string
}

var mappings = map[Kind]FieldMapping{
	KindGoogle: {
		ResultsPath:    "items",
		LinkField:      "link",
		TitleField:     "title",
		SnippetField:   "snippet",
		TotalPath:      "searchInformation.totalResults",
		QueryPath:      "queries.request.0.searchTerms",
		NextCursorPath: "queries.nextPage.0.startIndex",
	},
	KindBing: {
		ResultsPath:    "webPages.value",
		LinkField:      "url",
		TitleField:     "name",
		SnippetField:   "snippet",
		TotalPath:      "webPages.totalEstimatedMatches",
		QueryPath:      "queryContext.originalQuery",
		NextCursorPath: "rankingResponse.mainline.items",
	},
}

// MappingFor returns the field mapping of a JSON provider.
func MappingFor(kind Kind) (FieldMapping, error) {
	m, ok := mappings[kind]
	if !ok {
		return FieldMapping{}, fmt.Errorf("no field mapping for provider %q", kind)
	}
	return m, nil
}

// New builds the Strategy for kind. Credentials and filters are validated
// here so a bad setting fails before any row is dispatched.
func New(kind Kind, settings Settings) (Strategy, error) {
	if err := ValidateDepth(settings.Depth); err != nil {
		return nil, err
	}
	switch kind {
	case KindGoogle:
		return newGoogle(settings)
	case KindBing:
		return newBing(settings)
	case KindSites:
		return newSites(settings), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", kind)
	}
}

// parseEnvelope reads hits, total and query from a JSON body. Nodes without
// a link are skipped and counted.
func parseEnvelope(body []byte, m FieldMapping) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, fmt.Errorf("malformed response body")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Page{}, fmt.Errorf("response body is not an object")
	}
	page := Page{
		Keyword: root.Get(m.QueryPath).String(),
		Total:   root.Get(m.TotalPath).String(),
	}
	root.Get(m.ResultsPath).ForEach(func(_, node gjson.Result) bool {
		link := node.Get(m.LinkField)
		if !link.Exists() || strings.TrimSpace(link.String()) == "" {
			page.Skipped++
			return true
		}
		page.Hits = append(page.Hits, Hit{
			URL:     link.String(),
			Title:   node.Get(m.TitleField).String(),
			Snippet: node.Get(m.SnippetField).String(),
		})
		return true
	})
	return page, nil
}

// depthFor returns the row override when set, otherwise the configured depth.
func depthFor(row crawler.InputRow, fallback int) int {
	if row.Depth != nil {
		return *row.Depth
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
