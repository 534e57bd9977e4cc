package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Domain is a registrable domain split per public-suffix rules.
type Domain struct {
	Domain string
	Suffix string
}

// String joins the domain and suffix ("example.co.uk").
func (d Domain) String() string {
	switch {
	case d.Domain == "":
		return d.Suffix
	case d.Suffix == "":
		return d.Domain
	default:
		return d.Domain + "." + d.Suffix
	}
}

// ExtractDomain returns the registrable domain of a URL or bare host, so
// "https://www.example.co.uk/path" yields {example, co.uk}.
func ExtractDomain(raw string) (Domain, error) {
	host, err := hostOf(raw)
	if err != nil {
		return Domain{}, err
	}
	if ip := net.ParseIP(host); ip != nil {
		return Domain{Domain: host}, nil
	}
	suffix := icannSuffix(host)
	rest := strings.TrimSuffix(host, "."+suffix)
	if rest == host {
		// host is itself a public suffix or a single label
		return Domain{Suffix: suffix}, nil
	}
	return Domain{
		Domain: rest[strings.LastIndexByte(rest, '.')+1:],
		Suffix: suffix,
	}, nil
}

// icannSuffix returns the public suffix of host from the ICANN section of the
// list, skipping privately registered suffixes such as "blogspot.com".
func icannSuffix(host string) string {
	suffix, icann := publicsuffix.PublicSuffix(host)
	for !icann {
		dot := strings.IndexByte(suffix, '.')
		if dot < 0 {
			break
		}
		suffix, icann = publicsuffix.PublicSuffix(suffix[dot+1:])
	}
	return suffix
}

// SiteFilter renders the "site:" query fragment for raw.
func SiteFilter(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	d, err := ExtractDomain(raw)
	if err != nil {
		return "", err
	}
	if d.String() == "" {
		return "", fmt.Errorf("no domain in %q", raw)
	}
	return "site:" + d.String(), nil
}

// ResolveHref makes href absolute using the scheme and host of the page it
// was found on. "../" segments are dropped and scheme-less paths are taken
// from the host root.
func ResolveHref(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(href), "../", "")
	ref, err := url.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if ref.Scheme == "" && ref.Host == "" {
		ref.Scheme = base.Scheme
		ref.Host = base.Host
		if !strings.HasPrefix(ref.Path, "/") {
			ref.Path = "/" + ref.Path
		}
	}
	return ref.String(), nil
}

func hostOf(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	return host, nil
}
