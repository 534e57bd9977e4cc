// Package input loads crawl rows from CSV, YAML/JSON or plain line files.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// ErrEmpty is returned when a file yields no rows.
var ErrEmpty = errors.New("input has no rows")

// Load reads rows from path. Plain line files hold one keyword per line, or
// one site URL per line when sites is true.
func Load(path string, sites bool) ([]crawler.InputRow, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator configuration.
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var rows []crawler.InputRow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = ReadCSV(f)
	case ".yaml", ".yml", ".json":
		rows, err = ReadYAML(f)
	default:
		rows, err = ReadLines(f, sites)
	}
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read input %s: %w", path, ErrEmpty)
	}
	return rows, nil
}

// ReadLines reads one value per line, skipping blanks and # comments.
func ReadLines(r io.Reader, sites bool) ([]crawler.InputRow, error) {
	var rows []crawler.InputRow
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		value := strings.TrimSpace(scanner.Text())
		if value == "" || strings.HasPrefix(value, "#") {
			continue
		}
		row := crawler.InputRow{ID: line}
		if sites {
			row.Site = value
		} else {
			row.Keyword = value
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return rows, nil
}

// ReadCSV reads a headed CSV file. Column names are matched
// case-insensitively and any subset may be present; "url" is an alias for
// "site".
func ReadCSV(r io.Reader) ([]crawler.InputRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[normalizeColumn(name)] = i
	}
	if _, ok := index["site"]; !ok {
		if i, ok := index["url"]; ok {
			index["site"] = i
		}
	}

	var rows []crawler.InputRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		row := crawler.InputRow{
			ID:         line,
			Keyword:    get("keyword"),
			Site:       get("site"),
			Modifier:   get("modifier"),
			Freshness:  get("freshness"),
			StartDate:  get("startdate"),
			EndDate:    get("enddate"),
			State:      get("state"),
			System:     get("system"),
			ReportType: get("reporttype"),
		}
		if row.Keyword == "" && row.Site == "" {
			continue
		}
		if raw := get("depth"); raw != "" {
			depth, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: depth %q: %w", line, raw, err)
			}
			row.Depth = &depth
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type record struct {
	Keyword    string `yaml:"keyword"`
	Site       string `yaml:"site"`
	URL        string `yaml:"url"`
	Modifier   string `yaml:"modifier"`
	Freshness  string `yaml:"freshness"`
	StartDate  string `yaml:"start_date"`
	EndDate    string `yaml:"end_date"`
	State      string `yaml:"state"`
	System     string `yaml:"system"`
	ReportType string `yaml:"report_type"`
	Depth      *int   `yaml:"depth"`
}

// ReadYAML reads a YAML (or JSON) list of row objects.
func ReadYAML(r io.Reader) ([]crawler.InputRow, error) {
	var records []record
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	rows := make([]crawler.InputRow, 0, len(records))
	for i, rec := range records {
		site := rec.Site
		if site == "" {
			site = rec.URL
		}
		rows = append(rows, crawler.InputRow{
			ID:         i + 1,
			Keyword:    strings.TrimSpace(rec.Keyword),
			Site:       strings.TrimSpace(site),
			Modifier:   rec.Modifier,
			Freshness:  rec.Freshness,
			StartDate:  rec.StartDate,
			EndDate:    rec.EndDate,
			State:      rec.State,
			System:     rec.System,
			ReportType: rec.ReportType,
			Depth:      rec.Depth,
		})
	}
	return rows, nil
}

func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}
