package crawler

import (
	"path"
	"strings"
)

// FileIdentifier strips directories and the extension from a stored path,
// so "full/abc123.pdf" and "abc123.pdf" both yield "abc123".
func FileIdentifier(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
