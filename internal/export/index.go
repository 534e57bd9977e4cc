// Package export writes discovered items to CSV and tracks what is already
// on disk.
package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// DownloadIndex is the set of file identifiers present in the download
// directory when the run started. It is read-only after BuildIndex.
type DownloadIndex struct {
	ids map[string]struct{}
}

// BuildIndex walks dir and records every regular file's identifier. A
// missing dir yields an empty index.
func BuildIndex(dir string) (*DownloadIndex, error) {
	idx := &DownloadIndex{ids: make(map[string]struct{})}
	if dir == "" {
		return idx, nil
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if id := crawler.FileIdentifier(d.Name()); id != "" {
			idx.ids[id] = struct{}{}
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index downloads %s: %w", dir, err)
	}
	return idx, nil
}

// NewIndex builds an index from identifiers directly.
func NewIndex(ids ...string) *DownloadIndex {
	idx := &DownloadIndex{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		idx.ids[id] = struct{}{}
	}
	return idx
}

// Contains reports whether id was present at startup.
func (i *DownloadIndex) Contains(id string) bool {
	if i == nil || id == "" {
		return false
	}
	_, ok := i.ids[id]
	return ok
}

// Len returns the number of indexed files.
func (i *DownloadIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.ids)
}

// IsAlreadyDownloaded reports whether the item's stored file was present
// before this run. Items without a path are never considered downloaded.
func (i *DownloadIndex) IsAlreadyDownloaded(item crawler.ResultItem) bool {
	if item.DownloadedPath == "" {
		return false
	}
	return i.Contains(crawler.FileIdentifier(item.DownloadedPath))
}
