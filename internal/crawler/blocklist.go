package crawler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrBlocked is returned when a request targets a blacklisted domain.
var ErrBlocked = errors.New("domain is blacklisted")

// Blocklist stores registrable domains and suffix wildcards that must never be
// requested.
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist builds a Blocklist from patterns. Plain entries match that
// host, any subdomain of it, and any request whose registrable domain equals
// the entry; "*.gov" and ".gov" entries match any host under that suffix. It returns nil when no usable pattern is given.
func NewBlocklist(patterns []string) *Blocklist {
	matcher := &Blocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" || strings.HasPrefix(value, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

// LoadBlocklist reads one pattern per line from path.
func LoadBlocklist(path string) (*Blocklist, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator configuration.
	if err != nil {
		return nil, fmt.Errorf("open blacklist %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	patterns, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("read blacklist %s: %w", path, err)
	}
	return NewBlocklist(patterns), nil
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether rawURL belongs to a blocked domain.
func (b *Blocklist) IsBlocked(rawURL string) bool {
	if b == nil {
		return false
	}
	host, err := hostOf(rawURL)
	if err != nil {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for entry := range b.exact {
		if strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	if d, err := ExtractDomain(host); err == nil {
		if _, exact := b.exact[d.String()]; exact {
			return true
		}
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Len reports the number of patterns held.
func (b *Blocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.exact) + len(b.suffixes)
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return out, nil
}
