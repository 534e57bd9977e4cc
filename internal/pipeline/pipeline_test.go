package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/download"
	"github.com/JakeFAU/pension-crawler/internal/export"
	"github.com/JakeFAU/pension-crawler/internal/pdf"
	"github.com/JakeFAU/pension-crawler/internal/publisher/memory"
	"github.com/JakeFAU/pension-crawler/internal/search"
)

const testEndpoint = "https://search.test/customsearch/v1"

func googleStrategy(t *testing.T, depth int) search.Strategy {
	t.Helper()
	s, err := search.New(search.KindGoogle, search.Settings{
		Modifier:       "actuarial valuation",
		Filetype:       "pdf",
		Depth:          depth,
		GoogleKey:      "key",
		GoogleEngineID: "cx",
		GoogleEndpoint: testEndpoint,
	})
	require.NoError(t, err)
	return s
}

func googlePage(query string, from, n int, next int) []byte {
	items := make([]string, n)
	for i := range items {
		idx := from + i
		items[i] = fmt.Sprintf(`{"link":"https://ca.gov/reports/%d.pdf","title":"Report %d","snippet":"s%d"}`, idx, idx, idx)
	}
	nextPage := ""
	if next > 0 {
		nextPage = fmt.Sprintf(`,"nextPage":[{"startIndex":%d}]`, next)
	}
	return []byte(fmt.Sprintf(`{"queries":{"request":[{"searchTerms":%q}]%s},`+
		`"searchInformation":{"totalResults":"13"},"items":[%s]}`, query, nextPage, strings.Join(items, ",")))
}

func TestRunEndToEndThirteenRowsTwoRequests(t *testing.T) {
	fetcher := newScriptedFetcher(func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		if strings.Contains(req.URL, "start=11") {
			return ok(req.URL, googlePage("q", 11, 3, 0)), nil
		}
		return ok(req.URL, googlePage("q", 1, 10, 11)), nil
	})
	sink := &recordingSink{}
	o, err := New(Config{Concurrency: 2}, Deps{
		Strategy: googleStrategy(t, 0),
		Fetcher:  fetcher,
		Export:   sink,
		Clock:    fixedClock{},
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	depth := 1
	row := crawler.InputRow{
		ID: 1, Keyword: "teachers pension", Modifier: "actuarial valuation", Site: "ca.gov", Depth: &depth,
		State: "CA", System: "CalSTRS", ReportType: "valuation",
	}
	stats, err := o.Run(context.Background(), []crawler.InputRow{row})
	require.NoError(t, err)

	assert.Len(t, sink.items(), 13)
	assert.Equal(t, 2, fetcher.count())
	assert.EqualValues(t, 2, stats.Requests)
	assert.EqualValues(t, 13, stats.Items)
	assert.EqualValues(t, 13, stats.Exported)

	first := fetcher.urls()[0]
	assert.Contains(t, first, "q=teachers+pension+site%3Aca.gov+actuarial+valuation+filetype%3Apdf")
	for _, item := range sink.items() {
		assert.Equal(t, "CA", item.State)
		assert.Equal(t, "CalSTRS", item.System)
		assert.Equal(t, "valuation", item.ReportType)
		assert.Equal(t, []string{item.URL}, item.FileURLs)
		assert.Equal(t, fixedClock{}.Now(), item.Timestamp)
	}
}

func TestRunDepthZeroSendsOneRequest(t *testing.T) {
	fetcher := newScriptedFetcher(func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		return ok(req.URL, googlePage("q", 1, 10, 11)), nil
	})
	sink := &recordingSink{}
	o, err := New(Config{}, Deps{Strategy: googleStrategy(t, 0), Fetcher: fetcher, Export: sink, Clock: fixedClock{}})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), []crawler.InputRow{{ID: 1, Keyword: "pension"}})
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.count())
	assert.Len(t, sink.items(), 10)
}

func TestRunAbandonsMalformedRowOnly(t *testing.T) {
	fetcher := newScriptedFetcher(func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		if strings.Contains(req.URL, "broken") {
			return ok(req.URL, []byte(`<html>rate limited</html>`)), nil
		}
		return ok(req.URL, googlePage("q", 1, 2, 0)), nil
	})
	sink := &recordingSink{}
	o, err := New(Config{Concurrency: 2}, Deps{Strategy: googleStrategy(t, 3), Fetcher: fetcher, Export: sink, Clock: fixedClock{}})
	require.NoError(t, err)

	stats, err := o.Run(context.Background(), []crawler.InputRow{
		{ID: 1, Keyword: "broken"},
		{ID: 2, Keyword: "fine"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.RowsAbandoned)
	assert.Len(t, sink.items(), 2)
	assert.Equal(t, 2, fetcher.count())
}

func TestRunAbandonsRowOnTransportError(t *testing.T) {
	fetcher := newScriptedFetcher(func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		return crawler.FetchResponse{}, errors.New("connection refused")
	})
	sink := &recordingSink{}
	core, logs := observer.New(zap.WarnLevel)
	o, err := New(Config{}, Deps{
		Strategy: googleStrategy(t, 2),
		Fetcher:  fetcher,
		Export:   sink,
		Clock:    fixedClock{},
		Logger:   zap.New(core),
	})
	require.NoError(t, err)

	stats, err := o.Run(context.Background(), []crawler.InputRow{{ID: 1, Keyword: "pension"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.RowsAbandoned)
	assert.Empty(t, sink.items())

	abandoned := logs.FilterMessage("request failed; abandoning row").All()
	require.Len(t, abandoned, 1)
	assert.Equal(t, "pension", abandoned[0].ContextMap()["label"])
	assert.EqualValues(t, 1, abandoned[0].ContextMap()["row"])
}

func TestRunRejectsInvalidRowsBeforeFetching(t *testing.T) {
	fetcher := newScriptedFetcher(nil)
	o, err := New(Config{}, Deps{Strategy: googleStrategy(t, 0), Fetcher: fetcher, Export: &recordingSink{}, Clock: fixedClock{}})
	require.NoError(t, err)

	bad := 12
	_, err = o.Run(context.Background(), []crawler.InputRow{
		{ID: 1, Keyword: "ok"},
		{ID: 2, Keyword: "deep", Depth: &bad},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Zero(t, fetcher.count())
}

func TestRunExportFailureStopsRun(t *testing.T) {
	fetcher := newScriptedFetcher(func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		return ok(req.URL, googlePage("q", 1, 3, 0)), nil
	})
	o, err := New(Config{}, Deps{
		Strategy: googleStrategy(t, 0),
		Fetcher:  fetcher,
		Export:   &recordingSink{err: errors.New("disk full")},
		Clock:    fixedClock{},
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), []crawler.InputRow{{ID: 1, Keyword: "pension"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunDownloadsProcessesAndFlags(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "full", "old.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(pdfPath), 0o750))
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4\n..."), 0o600))
	htmlPath := filepath.Join(dir, "full", "new")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<html></html>"), 0o600))

	dl := &fakeDownloader{results: map[string]download.Result{
		"https://ca.gov/reports/1.pdf": {Path: "full/old.pdf", FullPath: pdfPath, Status: download.StatusCached},
		"https://ca.gov/reports/2.pdf": {Path: "full/new", FullPath: htmlPath, Status: download.StatusFetched},
		"https://ca.gov/reports/3.pdf": {Status: download.StatusFailed, Err: errors.New("404")},
	}}
	year := "2017"
	pages := 12
	proc := &fakePDF{out: pdf.Outcome{Year: &year, PageCount: &pages, Succeeded: true}}
	fetcher := newScriptedFetcher(func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		return ok(req.URL, googlePage("q", 1, 3, 0)), nil
	})
	sink := &recordingSink{}
	extra := &recordingSink{}
	pub := memory.New()

	o, err := New(Config{}, Deps{
		Strategy:   googleStrategy(t, 0),
		Fetcher:    fetcher,
		Downloader: dl,
		PDF:        proc,
		Index:      export.NewIndex("old"),
		Export:     sink,
		Sinks:      []crawler.ItemSink{extra, Notifier{Publisher: pub, Topic: "results"}},
		Clock:      fixedClock{},
	})
	require.NoError(t, err)

	stats, err := o.Run(context.Background(), []crawler.InputRow{{ID: 4, Keyword: "pension"}})
	require.NoError(t, err)

	byURL := map[string]crawler.ResultItem{}
	for _, item := range sink.items() {
		byURL[item.URL] = item
	}
	require.Len(t, byURL, 3)

	old := byURL["https://ca.gov/reports/1.pdf"]
	assert.Equal(t, "full/old.pdf", old.DownloadedPath)
	assert.True(t, old.Downloaded)
	require.NotNil(t, old.Year)
	assert.Equal(t, "2017", *old.Year)
	assert.Equal(t, 12, *old.PageCount)

	fresh := byURL["https://ca.gov/reports/2.pdf"]
	assert.Equal(t, "full/new", fresh.DownloadedPath)
	assert.False(t, fresh.Downloaded)
	assert.Nil(t, fresh.Year, "non-pdf bodies skip post-processing")

	failed := byURL["https://ca.gov/reports/3.pdf"]
	assert.Empty(t, failed.DownloadedPath)
	assert.Nil(t, failed.PageCount)

	assert.Equal(t, 1, proc.count())
	assert.EqualValues(t, 3, stats.Downloads)
	assert.EqualValues(t, 1, stats.DownloadFailures)
	assert.EqualValues(t, 1, stats.AlreadyDownloaded)
	assert.EqualValues(t, 1, stats.PDFProcessed)
	assert.Len(t, extra.items(), 3)
	require.Len(t, pub.Messages(), 3)
	assert.Equal(t, "results", pub.Messages()[0].Topic)
}

func TestRunSinkFailureIsNotFatal(t *testing.T) {
	fetcher := newScriptedFetcher(func(req crawler.FetchRequest) (crawler.FetchResponse, error) {
		return ok(req.URL, googlePage("q", 1, 2, 0)), nil
	})
	pub := memory.New()
	pub.FailWith(errors.New("unavailable"))
	sink := &recordingSink{}
	o, err := New(Config{}, Deps{
		Strategy: googleStrategy(t, 0),
		Fetcher:  fetcher,
		Export:   sink,
		Sinks:    []crawler.ItemSink{Notifier{Publisher: pub, Topic: "t"}},
		Clock:    fixedClock{},
	})
	require.NoError(t, err)

	stats, err := o.Run(context.Background(), []crawler.InputRow{{ID: 1, Keyword: "pension"}})
	require.NoError(t, err)
	assert.Len(t, sink.items(), 2)
	assert.EqualValues(t, 2, stats.SinkFailures)
}

func TestOnResponseSites(t *testing.T) {
	strategy, err := search.New(search.KindSites, search.Settings{})
	require.NoError(t, err)
	body := []byte(`<html><body>
		<a href="/docs/Valuation-2019.PDF"> 2019   Valuation </a>
		<a href="/about.html">About</a>
	</body></html>`)

	for _, emit := range []bool{false, true} {
		o, err := New(Config{EmitEmpty: emit}, Deps{Strategy: strategy, Fetcher: newScriptedFetcher(nil), Export: &recordingSink{}, Clock: fixedClock{}})
		require.NoError(t, err)
		req, err := strategy.FirstRequest(crawler.InputRow{ID: 3, Site: "plan.org/reports", State: "TX"})
		require.NoError(t, err)

		items, next := o.OnResponse(req, crawler.FetchResponse{URL: "http://plan.org/reports", StatusCode: 200, Body: body})
		assert.Nil(t, next)
		require.Len(t, items, 1)
		assert.Equal(t, "http://plan.org/reports", items[0].URL)
		assert.Equal(t, "http://plan.org/docs/Valuation-2019.PDF", items[0].Href)
		assert.Equal(t, "2019 Valuation", items[0].Text)
		assert.Equal(t, []string{"http://plan.org/docs/Valuation-2019.PDF"}, items[0].FileURLs)
		assert.Equal(t, "TX", items[0].State)

		empty, _ := o.OnResponse(req, crawler.FetchResponse{URL: "http://plan.org/reports", Body: []byte("<p>none</p>")})
		if emit {
			require.Len(t, empty, 1)
			assert.Equal(t, "http://plan.org/reports", empty[0].URL)
			assert.Empty(t, empty[0].FileURLs)
		} else {
			assert.Empty(t, empty)
		}
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
	_, err = New(Config{}, Deps{Strategy: googleStrategy(t, 0)})
	require.Error(t, err)
}

func ok(url string, body []byte) crawler.FetchResponse {
	return crawler.FetchResponse{URL: url, RequestURL: url, StatusCode: 200, Body: body}
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

type scriptedFetcher struct {
	mu     sync.Mutex
	seen   []string
	handle func(crawler.FetchRequest) (crawler.FetchResponse, error)
}

func newScriptedFetcher(handle func(crawler.FetchRequest) (crawler.FetchResponse, error)) *scriptedFetcher {
	return &scriptedFetcher{handle: handle}
}

func (f *scriptedFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req.URL)
	f.mu.Unlock()
	if f.handle == nil {
		return crawler.FetchResponse{}, errors.New("unexpected fetch")
	}
	return f.handle(req)
}

func (f *scriptedFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *scriptedFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type recordingSink struct {
	mu  sync.Mutex
	got []crawler.ResultItem
	err error
}

func (s *recordingSink) Export(_ context.Context, item crawler.ResultItem) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, item)
	return nil
}

func (s *recordingSink) items() []crawler.ResultItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.ResultItem(nil), s.got...)
}

type fakeDownloader struct {
	results map[string]download.Result
}

func (d *fakeDownloader) Start(_ context.Context, rawURL string) <-chan download.Result {
	out := make(chan download.Result, 1)
	res := d.results[rawURL]
	res.URL = rawURL
	out <- res
	return out
}

type fakePDF struct {
	mu    sync.Mutex
	calls int
	out   pdf.Outcome
}

func (p *fakePDF) Submit(context.Context, string) <-chan pdf.Outcome {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	out := make(chan pdf.Outcome, 1)
	out <- p.out
	return out
}

func (p *fakePDF) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
