package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCountPages(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "three.pdf", pagesOf(3, "FY2017"))

	n, err := CountPages(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountPagesUnreadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<html>not a pdf</html>"), 0o600))

	_, err := CountPages(path)
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestTextExtractor(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "doc.pdf", pagesOf(2, "FY2017 Actuarial Valuation"))

	text, err := TextExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "FY2017")
}

func TestTruncateKeepsLeadingPages(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "long.pdf", pagesOf(8, "FY2017"))

	out, err := Truncate(path, dir, 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(out) })

	n, err := CountPages(out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestProcessBelowTargetSkipsTruncation(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "short.pdf", pagesOf(3, "FY2017 Actuarial Valuation 2016-2017"))

	tr := &recordingTruncator{}
	p := NewProcessor(Config{TargetPages: 5, TempDir: dir}, zap.NewNop(), WithTruncator(tr.truncate))

	out := p.Process(context.Background(), path)
	require.True(t, out.Succeeded)
	require.NotNil(t, out.PageCount)
	assert.Equal(t, 3, *out.PageCount)
	require.NotNil(t, out.Year)
	assert.Equal(t, "2017", *out.Year)
	assert.Equal(t, "text", out.Method)
	assert.Zero(t, tr.count())
}

func TestProcessTruncatesAndRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	tmp := t.TempDir()
	path := writePDF(t, dir, "long.pdf", pagesOf(8, "Valuation as of 2019"))

	p := NewProcessor(Config{TargetPages: 5, TempDir: tmp}, zap.NewNop())
	out := p.Process(context.Background(), path)

	require.True(t, out.Succeeded)
	require.NotNil(t, out.PageCount)
	assert.Equal(t, 8, *out.PageCount, "page count reports the full document")
	require.NotNil(t, out.Year)
	assert.Equal(t, "2019", *out.Year)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessFallsBackToNextExtractor(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "scan.pdf", pagesOf(1, "   "))

	ocr := &stubExtractor{name: "ocr", text: "Scanned report 2011"}
	p := NewProcessor(Config{TargetPages: 5}, zap.NewNop(),
		WithExtractors(&stubExtractor{name: "text", text: "  \n"}, ocr))

	out := p.Process(context.Background(), path)
	require.NotNil(t, out.Year)
	assert.Equal(t, "2011", *out.Year)
	assert.Equal(t, "ocr", out.Method)
}

func TestProcessNoTextKeepsPageCount(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "blank.pdf", pagesOf(2, "Page"))

	p := NewProcessor(Config{TargetPages: 5}, zap.NewNop(),
		WithExtractors(&stubExtractor{name: "text", err: errors.New("boom")}, &stubExtractor{name: "ocr"}))

	out := p.Process(context.Background(), path)
	assert.True(t, out.Succeeded)
	require.NotNil(t, out.PageCount)
	assert.Equal(t, 2, *out.PageCount)
	assert.Nil(t, out.Year)
}

func TestProcessUnreadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 truncated"), 0o600))

	out := NewProcessor(Config{}, nil).Process(context.Background(), path)
	assert.False(t, out.Succeeded)
	assert.Nil(t, out.PageCount)
	assert.Nil(t, out.Year)
}

func TestProcessTruncateFailureReadsFullDocument(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "long.pdf", pagesOf(7, "Plan year ending June 30, 2020"))

	failing := func(string, string, int) (string, error) { return "", errors.New("trim failed") }
	out := NewProcessor(Config{TargetPages: 5}, zap.NewNop(), WithTruncator(failing)).
		Process(context.Background(), path)

	require.True(t, out.Succeeded)
	require.NotNil(t, out.PageCount)
	assert.Equal(t, 7, *out.PageCount)
	require.NotNil(t, out.Year)
	assert.Equal(t, "2020", *out.Year)
	assert.Equal(t, "text", out.Method)
}

type recordingTruncator struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingTruncator) truncate(in, tempDir string, pages int) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return Truncate(in, tempDir, pages)
}

func (r *recordingTruncator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubExtractor struct {
	name string
	text string
	err  error
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(context.Context, string) (string, error) {
	return s.text, s.err
}
