package pdf

import "regexp"

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// InferYear returns the leftmost 1900-2099 year in text, or nil.
func InferYear(text string) *string {
	match := yearPattern.FindString(text)
	if match == "" {
		return nil
	}
	return &match
}
