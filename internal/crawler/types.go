// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"strconv"
	"time"
)

// InputRow is one unit of crawl work read from the input file.
type InputRow struct {
	ID         int    `json:"id"`
	Keyword    string `json:"keyword,omitempty"`
	Site       string `json:"site,omitempty"`
	Modifier   string `json:"modifier,omitempty"`
	Freshness  string `json:"freshness,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	State      string `json:"state,omitempty"`
	System     string `json:"system,omitempty"`
	ReportType string `json:"report_type,omitempty"`
	// Depth overrides the configured depth budget when set.
	Depth *int `json:"depth,omitempty"`
}

// Label returns a short human readable identifier for logs.
func (r InputRow) Label() string {
	switch {
	case r.Keyword != "":
		return r.Keyword
	case r.Site != "":
		return r.Site
	default:
		return "row-" + strconv.Itoa(r.ID)
	}
}

// ResultItem is one discovered document. Year and PageCount stay nil unless
// the file was downloaded and read as a PDF.
type ResultItem struct {
	RowID      int       `json:"row_id"`
	Keyword    string    `json:"keyword,omitempty"`
	Total      string    `json:"total,omitempty"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
	Href       string    `json:"href,omitempty"`
	Text       string    `json:"text,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state,omitempty"`
	System     string    `json:"system,omitempty"`
	ReportType string    `json:"report_type,omitempty"`
	FileURLs   []string  `json:"file_urls,omitempty"`

	DownloadedPath string  `json:"path,omitempty"`
	Downloaded     bool    `json:"downloaded"`
	Year           *string `json:"year,omitempty"`
	PageCount      *int    `json:"page_count,omitempty"`
}

// MergeRow copies the row's contextual metadata onto the item verbatim.
func (i *ResultItem) MergeRow(row InputRow) {
	i.RowID = row.ID
	i.State = row.State
	i.System = row.System
	i.ReportType = row.ReportType
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	RequestURL string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
