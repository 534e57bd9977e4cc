package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

func TestFileName(t *testing.T) {
	start := time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "google_20240309T190507Z.csv", FileName("google", start))
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig(ModeSites, true, false)
	w, err := Create(dir, "sites", time.Unix(0, 0), cfg)
	require.NoError(t, err)

	items := []crawler.ResultItem{
		{URL: "https://plan.org/reports", Href: "https://plan.org/a.pdf", Text: "Annual, 2019", DownloadedPath: "full/a.pdf"},
		{URL: "https://plan.org/reports", Href: "https://plan.org/b.pdf", Text: `Quoted "text"`},
	}
	for _, it := range items {
		require.NoError(t, w.Export(context.Background(), it))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	records := readCSV(t, w.Path())
	require.Len(t, records, 3)
	assert.Equal(t, []string{"url", "href", "text", "path"}, records[0])
	assert.Equal(t, []string{"https://plan.org/reports", "https://plan.org/a.pdf", "Annual, 2019", "full/a.pdf"}, records[1])
	assert.Equal(t, []string{"https://plan.org/reports", "https://plan.org/b.pdf", `Quoted "text"`, ""}, records[2])
	assert.Equal(t, filepath.Join(dir, "sites_19700101T000000Z.csv"), w.Path())
}

func TestWriterConcurrentExports(t *testing.T) {
	w, err := Create(t.TempDir(), "bing", time.Now(), NewConfig(ModeSearch, false, false))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Export(context.Background(), crawler.ResultItem{
				Keyword: "k", URL: fmt.Sprintf("https://x.org/%d.pdf", i),
			}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	assert.Len(t, readCSV(t, w.Path()), 51)
}

func TestWriterExportAfterClose(t *testing.T) {
	w, err := Create(t.TempDir(), "google", time.Now(), NewConfig(ModeSearch, true, false))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = w.Export(context.Background(), crawler.ResultItem{URL: "https://x.org"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestWriterDiscardRemovesFile(t *testing.T) {
	w, err := Create(t.TempDir(), "sites", time.Now(), NewConfig(ModeSites, false, false))
	require.NoError(t, err)

	require.NoError(t, w.Discard())
	_, err = os.Stat(w.Path())
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorIs(t, w.Export(context.Background(), crawler.ResultItem{URL: "https://x.org"}), ErrClosed)
	require.NoError(t, w.Discard())
}

func TestCreateRefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	start := time.Now()
	w, err := Create(dir, "google", start, NewConfig(ModeSearch, true, false))
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck

	_, err = Create(dir, "google", start, NewConfig(ModeSearch, true, false))
	require.Error(t, err)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}
