package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// DailyReport is the end-of-day summary written when counters roll over.
type DailyReport struct {
	Day        string        `json:"day"`
	Venue      string        `json:"venue"`
	Profile    string        `json:"profile"`
	Counters   DailyCounters `json:"counters"`
	Orders     []Order       `json:"orders"`
	Violations []Violation   `json:"violations"`
	Equity     float64       `json:"equity"`
	ClosedAt   time.Time     `json:"closed_at"`
}

// ReportArchiver stores and fetches daily reports.
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, report DailyReport) error
	LoadReport(ctx context.Context, day string) (DailyReport, error)
	Days(ctx context.Context) ([]string, error)
}
