package export

import (
	"strconv"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// Mode separates search-engine exports from direct site traversal.
type Mode string

const (
	ModeSearch Mode = "search"
	ModeSites  Mode = "sites"
)

// Column names as written in the CSV header.
const (
	FieldKeyword    = "keyword"
	FieldURL        = "url"
	FieldTitle      = "title"
	FieldSnippet    = "snippet"
	FieldTotal      = "total"
	FieldHref       = "href"
	FieldText       = "text"
	FieldState      = "state"
	FieldSystem     = "system"
	FieldReportType = "reportType"
	FieldYear       = "year"
	FieldPageCount  = "pageCount"
	FieldPath       = "path"
	FieldDownloaded = "downloaded"
)

var fileFields = map[string]struct{}{
	FieldPath:       {},
	FieldYear:       {},
	FieldPageCount:  {},
	FieldDownloaded: {},
}

// Config fixes the column set for a run.
type Config struct {
	DownloadEnabled bool
	Metadata        bool
	Mode            Mode
	Fields          []string
}

// NewConfig resolves the ordered column list for mode.
func NewConfig(mode Mode, downloadEnabled, metadata bool) Config {
	var fields []string
	switch {
	case mode == ModeSites && metadata:
		fields = []string{FieldURL, FieldHref, FieldText, FieldState, FieldSystem, FieldReportType,
			FieldYear, FieldPageCount, FieldPath, FieldDownloaded}
	case mode == ModeSites:
		fields = []string{FieldURL, FieldHref, FieldText, FieldPath}
	case metadata:
		fields = []string{FieldKeyword, FieldURL, FieldTitle, FieldSnippet, FieldTotal, FieldState,
			FieldSystem, FieldReportType, FieldYear, FieldPageCount, FieldPath, FieldDownloaded}
	default:
		fields = []string{FieldKeyword, FieldURL, FieldTitle, FieldPath}
	}
	if !downloadEnabled {
		kept := fields[:0]
		for _, f := range fields {
			if _, drop := fileFields[f]; !drop {
				kept = append(kept, f)
			}
		}
		fields = kept
	}
	return Config{
		DownloadEnabled: downloadEnabled,
		Metadata:        metadata,
		Mode:            mode,
		Fields:          fields,
	}
}

// Project renders item in c.Fields order. Absent values become "".
func (c Config) Project(item crawler.ResultItem) []string {
	row := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		row[i] = value(item, f)
	}
	return row
}

func value(item crawler.ResultItem, field string) string {
	switch field {
	case FieldKeyword:
		return item.Keyword
	case FieldURL:
		return item.URL
	case FieldTitle:
		return item.Title
	case FieldSnippet:
		return item.Snippet
	case FieldTotal:
		return item.Total
	case FieldHref:
		return item.Href
	case FieldText:
		return item.Text
	case FieldState:
		return item.State
	case FieldSystem:
		return item.System
	case FieldReportType:
		return item.ReportType
	case FieldYear:
		if item.Year == nil {
			return ""
		}
		return *item.Year
	case FieldPageCount:
		if item.PageCount == nil {
			return ""
		}
		return strconv.Itoa(*item.PageCount)
	case FieldPath:
		return item.DownloadedPath
	case FieldDownloaded:
		if item.DownloadedPath == "" {
			return ""
		}
		return strconv.FormatBool(item.Downloaded)
	default:
		return ""
	}
}
