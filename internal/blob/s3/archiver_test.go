package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// memBlobs is an in-memory bucket.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestArchiveAndLoadReport(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, nil, discard())

	report := domain.DailyReport{
		Day:      "2026-03-02",
		Venue:    "paper",
		Profile:  "moderate",
		Counters: domain.DailyCounters{Day: "2026-03-02", Trades: 3, PL: -42.5, Losses: 1},
		Orders: []domain.Order{
			{ID: "o1", Symbol: "AAPL", Side: domain.OrderSideBuy, Status: domain.OrderStatusFilled},
			{ID: "o2", Symbol: "AAPL", Side: domain.OrderSideSell, Status: domain.OrderStatusFilled},
		},
		Equity:   99_957.5,
		ClosedAt: time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC),
	}
	require.NoError(t, a.ArchiveReport(ctx, report))

	_, err := blobs.Get(ctx, "reports/daily/2026/03/02.json")
	require.NoError(t, err)
	lines, err := blobs.Get(ctx, "reports/daily/2026/03/02.orders.jsonl")
	require.NoError(t, err)
	raw, _ := io.ReadAll(lines)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))

	got, err := a.LoadReport(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, report.Counters, got.Counters)
	assert.Len(t, got.Orders, 2)
	assert.True(t, report.ClosedAt.Equal(got.ClosedAt))

	days, err := a.Days(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-02"}, days)
}

func TestLoadMissingReport(t *testing.T) {
	a := NewArchiver(newMemBlobs(), nil, discard())
	_, err := a.LoadReport(context.Background(), "2026-01-01")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = a.LoadReport(context.Background(), "yesterday")
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://e2.example.com", endpointURL("e2.example.com", true))
	assert.Equal(t, "http://minio:9000", endpointURL("http://minio:9000", true))
}
