package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable marks files that cannot be parsed as PDF.
var ErrUnreadable = errors.New("unreadable pdf")

// Extractor pulls text from a PDF file.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// CountPages opens path and returns its page count. Parser panics on
// malformed input are reported as ErrUnreadable.
func CountPages(path string) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	n := r.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return n, nil
}

// TextExtractor reads the embedded text layer.
type TextExtractor struct{}

// Name implements Extractor.
func (TextExtractor) Name() string { return "text" }

// Extract implements Extractor.
func (TextExtractor) Extract(_ context.Context, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract text: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return buf.String(), nil
}

// OCRExtractor rasterizes pages with pdftoppm and reads them with tesseract.
type OCRExtractor struct {
	TempDir   string
	DPI       int
	Rasterize string
	Recognize string
}

// NewOCRExtractor checks both tools are on PATH.
func NewOCRExtractor(tempDir string) (*OCRExtractor, error) {
	o := &OCRExtractor{TempDir: tempDir, DPI: 300, Rasterize: "pdftoppm", Recognize: "tesseract"}
	for _, bin := range []string{o.Rasterize, o.Recognize} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, fmt.Errorf("ocr needs %s on PATH: %w", bin, err)
		}
	}
	return o, nil
}

// Name implements Extractor.
func (o *OCRExtractor) Name() string { return "ocr" }

// Extract implements Extractor.
func (o *OCRExtractor) Extract(ctx context.Context, path string) (string, error) {
	dir, err := os.MkdirTemp(o.TempDir, "ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best effort

	prefix := filepath.Join(dir, "page")
	// #nosec G204 -- binaries are fixed at construction.
	raster := exec.CommandContext(ctx, o.Rasterize, "-r", fmt.Sprint(o.DPI), "-png", path, prefix)
	if out, err := raster.CombinedOutput(); err != nil {
		return "", fmt.Errorf("rasterize: %w: %s", err, strings.TrimSpace(string(out)))
	}
	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", fmt.Errorf("list page images: %w", err)
	}
	sort.Strings(images)

	var text strings.Builder
	for _, img := range images {
		// #nosec G204 -- binaries are fixed at construction.
		out, err := exec.CommandContext(ctx, o.Recognize, img, "stdout").Output()
		if err != nil {
			return "", fmt.Errorf("recognize %s: %w", filepath.Base(img), err)
		}
		text.Write(out)
		text.WriteByte('\n')
	}
	return text.String(), nil
}
