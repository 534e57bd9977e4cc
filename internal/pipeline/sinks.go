package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// Notification is the compact per-item message published by Notifier.
type Notification struct {
	RowID      int       `json:"row_id"`
	URL        string    `json:"url"`
	Href       string    `json:"href,omitempty"`
	State      string    `json:"state,omitempty"`
	System     string    `json:"system,omitempty"`
	ReportType string    `json:"report_type,omitempty"`
	Year       *string   `json:"year,omitempty"`
	PageCount  *int      `json:"page_count,omitempty"`
	Path       string    `json:"path,omitempty"`
	Downloaded bool      `json:"downloaded"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewNotification projects item into a Notification.
func NewNotification(item crawler.ResultItem) Notification {
	return Notification{
		RowID:      item.RowID,
		URL:        item.URL,
		Href:       item.Href,
		State:      item.State,
		System:     item.System,
		ReportType: item.ReportType,
		Year:       item.Year,
		PageCount:  item.PageCount,
		Path:       item.DownloadedPath,
		Downloaded: item.Downloaded,
		Timestamp:  item.Timestamp,
	}
}

// Notifier adapts a Publisher into an ItemSink.
type Notifier struct {
	Publisher crawler.Publisher
	Topic     string
}

// Export publishes a Notification for item.
func (n Notifier) Export(ctx context.Context, item crawler.ResultItem) error {
	if _, err := n.Publisher.Publish(ctx, n.Topic, NewNotification(item)); err != nil {
		return fmt.Errorf("publish item: %w", err)
	}
	return nil
}
