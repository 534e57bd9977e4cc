package pipeline

import "sync/atomic"

// Stats summarizes a run.
type Stats struct {
	Rows              int64 `json:"rows"`
	Requests          int64 `json:"requests"`
	RowsAbandoned     int64 `json:"rows_abandoned"`
	Items             int64 `json:"items"`
	Exported          int64 `json:"exported"`
	Downloads         int64 `json:"downloads"`
	DownloadFailures  int64 `json:"download_failures"`
	AlreadyDownloaded int64 `json:"already_downloaded"`
	PDFProcessed      int64 `json:"pdf_processed"`
	PDFFailures       int64 `json:"pdf_failures"`
	SinkFailures      int64 `json:"sink_failures"`
}

type counters struct {
	rows              atomic.Int64
	requests          atomic.Int64
	rowsAbandoned     atomic.Int64
	items             atomic.Int64
	exported          atomic.Int64
	downloads         atomic.Int64
	downloadFailures  atomic.Int64
	alreadyDownloaded atomic.Int64
	pdfProcessed      atomic.Int64
	pdfFailures       atomic.Int64
	sinkFailures      atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Rows:              c.rows.Load(),
		Requests:          c.requests.Load(),
		RowsAbandoned:     c.rowsAbandoned.Load(),
		Items:             c.items.Load(),
		Exported:          c.exported.Load(),
		Downloads:         c.downloads.Load(),
		DownloadFailures:  c.downloadFailures.Load(),
		AlreadyDownloaded: c.alreadyDownloaded.Load(),
		PDFProcessed:      c.pdfProcessed.Load(),
		PDFFailures:       c.pdfFailures.Load(),
		SinkFailures:      c.sinkFailures.Load(),
	}
}
