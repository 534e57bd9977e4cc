// Package search turns input rows into paginated provider requests and reads
// provider response envelopes back into hits.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// MaxDepth is the largest accepted depth budget.
const MaxDepth = 9

var datePattern = regexp.MustCompile(`^\d{8}$`)

var freshnessValues = map[string]struct{}{
	"Day":   {},
	"Week":  {},
	"Month": {},
}

// ValidateDepth rejects budgets outside 0..MaxDepth.
func ValidateDepth(depth int) error {
	if depth < 0 || depth > MaxDepth {
		return fmt.Errorf("depth %d out of range 0-%d", depth, MaxDepth)
	}
	return nil
}

// ValidateDate accepts an empty value or a real calendar date as YYYYMMDD.
func ValidateDate(value string) error {
	if value == "" {
		return nil
	}
	if !datePattern.MatchString(value) {
		return fmt.Errorf("date %q must be YYYYMMDD", value)
	}
	if _, err := time.Parse("20060102", value); err != nil {
		return fmt.Errorf("date %q is not a calendar date", value)
	}
	return nil
}

// ValidateFreshness accepts an empty value, Day, Week or Month.
func ValidateFreshness(value string) error {
	if value == "" {
		return nil
	}
	if _, ok := freshnessValues[value]; !ok {
		return fmt.Errorf("freshness %q must be one of Day, Week, Month", value)
	}
	return nil
}

// ValidateRow checks the per-row overrides a provider will use.
func ValidateRow(row crawler.InputRow) error {
	var errs []error
	if row.Depth != nil {
		if err := ValidateDepth(*row.Depth); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range []string{row.StartDate, row.EndDate} {
		if err := ValidateDate(d); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ValidateFreshness(row.Freshness); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("row %d: %w", row.ID, err)
	}
	return nil
}

// BuildQuery joins keyword, site filter, modifier and filetype token with
// single spaces, omitting empty parts.
func BuildQuery(keyword, site, modifier, filetype string) (string, error) {
	filter, err := crawler.SiteFilter(site)
	if err != nil {
		return "", fmt.Errorf("site filter: %w", err)
	}
	ext := strings.TrimPrefix(strings.TrimSpace(filetype), ".")
	if ext != "" {
		ext = "filetype:" + ext
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{keyword, filter, modifier, ext} {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " "), nil
}
