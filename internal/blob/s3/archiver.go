package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const reportPrefix = "reports/daily/"

// multipartThreshold is the order log size above which uploads are split.
const multipartThreshold = 8 << 20

// Blobs is the object storage the archiver writes to.
type Blobs interface {
	domain.BlobWriter
	domain.BlobReader
}

// Archiver implements domain.ReportArchiver. Each day is one JSON report at
// reports/daily/YYYY/MM/DD.json plus the day's orders as JSONL beside it,
// so order history can be loaded without parsing the full report.
type Archiver struct {
	blobs  Blobs
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(blobs Blobs, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{blobs: blobs, audit: audit, logger: logger.With(slog.String("component", "archiver"))}
}

// ArchiveReport uploads r. Re-archiving a day overwrites it.
func (a *Archiver) ArchiveReport(ctx context.Context, r domain.DailyReport) error {
	base, err := reportBase(r.Day)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report %s: %w", r.Day, err)
	}
	if err := a.blobs.Put(ctx, base+".json", bytes.NewReader(body), "application/json"); err != nil {
		return err
	}
	if len(r.Orders) > 0 {
		lines, err := marshalJSONL(r.Orders)
		if err != nil {
			return fmt.Errorf("s3blob: marshal orders %s: %w", r.Day, err)
		}
		path := base + ".orders.jsonl"
		if len(lines) > multipartThreshold {
			err = a.blobs.PutMultipart(ctx, path, bytes.NewReader(lines), 0)
		} else {
			err = a.blobs.Put(ctx, path, bytes.NewReader(lines), "application/x-ndjson")
		}
		if err != nil {
			return err
		}
	}

	a.logger.InfoContext(ctx, "daily report archived", slog.String("day", r.Day), slog.Int("orders", len(r.Orders)))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "report_archived", map[string]any{
			"day":    r.Day,
			"path":   base + ".json",
			"trades": r.Counters.Trades,
			"pl":     r.Counters.PL,
		}); err != nil {
			a.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// LoadReport returns domain.ErrNotFound for a day never archived.
func (a *Archiver) LoadReport(ctx context.Context, day string) (domain.DailyReport, error) {
	base, err := reportBase(day)
	if err != nil {
		return domain.DailyReport{}, err
	}
	rc, err := a.blobs.Get(ctx, base+".json")
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer rc.Close()

	var r domain.DailyReport
	if err := json.NewDecoder(rc).Decode(&r); err != nil {
		return domain.DailyReport{}, fmt.Errorf("s3blob: decode report %s: %w", day, err)
	}
	return r, nil
}

// Days lists archived report days, oldest first.
func (a *Archiver) Days(ctx context.Context) ([]string, error) {
	infos, err := a.blobs.List(ctx, reportPrefix)
	if err != nil {
		return nil, err
	}
	var days []string
	for _, info := range infos {
		rest, ok := strings.CutSuffix(strings.TrimPrefix(info.Path, reportPrefix), ".json")
		if !ok {
			continue
		}
		days = append(days, strings.ReplaceAll(rest, "/", "-"))
	}
	return days, nil
}

// reportBase maps 2026-03-02 to reports/daily/2026/03/02.
func reportBase(day string) (string, error) {
	parts := strings.Split(day, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return "", fmt.Errorf("s3blob: report day %q: %w", day, domain.ErrConfig)
	}
	return reportPrefix + strings.Join(parts, "/"), nil
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.ReportArchiver = (*Archiver)(nil)
