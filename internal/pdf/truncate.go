package pdf

import (
	"fmt"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var disableConfigDir sync.Once

// Truncate writes the first pages of in to a new temp file under tempDir and
// returns its path. The caller removes it.
func Truncate(in, tempDir string, pages int) (string, error) {
	if pages <= 0 {
		return "", fmt.Errorf("truncate: page target must be > 0")
	}
	disableConfigDir.Do(api.DisableConfigDir)

	tmp, err := os.CreateTemp(tempDir, "truncated-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	out := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("close temp pdf: %w", err)
	}
	if err := api.TrimFile(in, out, []string{fmt.Sprintf("1-%d", pages)}, nil); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("trim pdf: %w", err)
	}
	return out, nil
}
