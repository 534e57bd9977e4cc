package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Domain
	}{
		{"https://www.example.co.uk/path", Domain{Domain: "example", Suffix: "co.uk"}},
		{"ca.gov", Domain{Domain: "ca", Suffix: "gov"}},
		{"http://www.calpers.ca.gov/page?x=1", Domain{Domain: "ca", Suffix: "gov"}},
		{"sub.example.com:8080", Domain{Domain: "example", Suffix: "com"}},
		{"127.0.0.1:9000", Domain{Domain: "127.0.0.1"}},
		{"https://foo.blogspot.com/r.pdf", Domain{Domain: "blogspot", Suffix: "com"}},
		{"pension.github.io", Domain{Domain: "github", Suffix: "io"}},
		{"gov", Domain{Suffix: "gov"}},
	}
	for _, tc := range cases {
		got, err := ExtractDomain(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ExtractDomain("   ")
	require.Error(t, err)
}

func TestSiteFilter(t *testing.T) {
	t.Parallel()

	got, err := SiteFilter("https://www.example.co.uk/reports")
	require.NoError(t, err)
	assert.Equal(t, "site:example.co.uk", got)

	got, err = SiteFilter("ca.gov")
	require.NoError(t, err)
	assert.Equal(t, "site:ca.gov", got)

	got, err = SiteFilter("https://foo.blogspot.com/reports")
	require.NoError(t, err)
	assert.Equal(t, "site:blogspot.com", got)

	got, err = SiteFilter("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	cases := []struct {
		page, href, want string
	}{
		{"https://plan.org/investments/index.html", "docs/val.pdf", "https://plan.org/docs/val.pdf"},
		{"https://plan.org/investments/index.html", "../docs/val.pdf", "https://plan.org/docs/val.pdf"},
		{"https://plan.org/a/b.html", "files/v.pdf?rev=2", "https://plan.org/files/v.pdf?rev=2"},
		{"https://plan.org/investments/", "/files/val.PDF", "https://plan.org/files/val.PDF"},
		{"https://plan.org/", "https://cdn.plan.org/v.pdf", "https://cdn.plan.org/v.pdf"},
	}
	for _, tc := range cases {
		got, err := ResolveHref(tc.page, tc.href)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.href)
	}
}

func TestInputRowLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pension", InputRow{Keyword: "pension"}.Label())
	assert.Equal(t, "ca.gov", InputRow{Site: "ca.gov"}.Label())
	assert.Equal(t, "row-7", InputRow{ID: 7}.Label())
}

func TestFileIdentifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc123", FileIdentifier("full/abc123.pdf"))
	assert.Equal(t, "abc123", FileIdentifier("abc123.pdf"))
	assert.Equal(t, "abc123", FileIdentifier(`C:\downloads\full\abc123.PDF`))
	assert.Equal(t, "abc123", FileIdentifier("abc123"))
	assert.Equal(t, "", FileIdentifier(""))
}
