package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                              string
		keyword, site, modifier, filetype string
		want                              string
	}{
		{"all parts", "teachers pension", "ca.gov", "actuarial valuation", "pdf",
			"teachers pension site:ca.gov actuarial valuation filetype:pdf"},
		{"site normalized", "", "https://www.example.co.uk/reports", "", "",
			"site:example.co.uk"},
		{"empty parts omitted", "calpers", "", "", "pdf", "calpers filetype:pdf"},
		{"dot filetype", "calpers", "", "cafr", ".pdf", "calpers cafr filetype:pdf"},
		{"whitespace collapsed", "  state   plan ", "", " annual  report ", "", "state plan annual report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildQuery(tt.keyword, tt.site, tt.modifier, tt.filetype)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateDepth(t *testing.T) {
	t.Parallel()

	for d := 0; d <= MaxDepth; d++ {
		assert.NoError(t, ValidateDepth(d))
	}
	assert.Error(t, ValidateDepth(-1))
	assert.Error(t, ValidateDepth(10))
}

func TestValidateDate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateDate(""))
	assert.NoError(t, ValidateDate("20160229"))
	assert.Error(t, ValidateDate("2016-02-29"))
	assert.Error(t, ValidateDate("20170229"))
	assert.Error(t, ValidateDate("2017011"))
	assert.Error(t, ValidateDate("201701011"))
}

func TestValidateFreshness(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"", "Day", "Week", "Month"} {
		assert.NoError(t, ValidateFreshness(v))
	}
	assert.Error(t, ValidateFreshness("day"))
	assert.Error(t, ValidateFreshness("Year"))
}

func TestValidateRowCollectsOverrides(t *testing.T) {
	t.Parallel()

	depth := 12
	err := ValidateRow(crawler.InputRow{ID: 4, Depth: &depth, StartDate: "2017", Freshness: "Hour"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 4")
	assert.Contains(t, err.Error(), "depth 12")
	assert.Contains(t, err.Error(), "YYYYMMDD")
	assert.Contains(t, err.Error(), "freshness")

	ok := 3
	assert.NoError(t, ValidateRow(crawler.InputRow{Depth: &ok, EndDate: "20171231", Freshness: "Month"}))
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := ParseKind(" Google ")
	require.NoError(t, err)
	assert.Equal(t, KindGoogle, k)
	assert.True(t, k.IsSearch())

	k, err = ParseKind("sites")
	require.NoError(t, err)
	assert.False(t, k.IsSearch())

	_, err = ParseKind("yahoo")
	assert.Error(t, err)
}
