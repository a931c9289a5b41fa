package ingest

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/fetcher"
	"github.com/sells-group/advisor-reports/internal/metrics"
	"github.com/sells-group/advisor-reports/internal/model"
)

// BatchWriter persists one ingestion's records atomically.
type BatchWriter interface {
	ImportBatch(ctx context.Context, recs []model.PerformanceRecord) (int64, error)
}

// NameRecorder stores advisor display names seen in an extract. Stores that
// implement it get names recorded after a successful import.
type NameRecorder interface {
	RecordAdvisorNames(ctx context.Context, names map[string]string) error
}

// Importer parses an extract, normalizes its rows, and writes them as one batch.
type Importer struct {
	store   BatchWriter
	mapping Mapping
	metrics *metrics.Pipeline
	timeout time.Duration
}

// Option configures an Importer.
type Option func(*Importer)

// WithMetrics records import outcomes on m.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(im *Importer) { im.metrics = m }
}

// WithSourceTimeout bounds remote extract downloads.
func WithSourceTimeout(d time.Duration) Option {
	return func(im *Importer) { im.timeout = d }
}

// NewImporter creates an Importer writing to store with the given mapping.
func NewImporter(store BatchWriter, mapping Mapping, opts ...Option) *Importer {
	im := &Importer{store: store, mapping: mapping, timeout: 60 * time.Second}
	for _, o := range opts {
		o(im)
	}
	return im
}

// ImportResult summarizes one import.
type ImportResult struct {
	Period     string `json:"period"`
	Rows       int    `json:"rows"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	Written    int64  `json:"records_processed"`
}

// Import reads an extract from r and writes its records for period.
// Structural problems abort before anything is written; a store failure
// rolls back the whole batch.
func (im *Importer) Import(ctx context.Context, r io.Reader, format string, period model.Period) (*ImportResult, error) {
	res, err := im.importExtract(ctx, r, format, period)
	if res != nil {
		im.metrics.ObserveImport(int(res.Written), res.Skipped, err)
	} else {
		im.metrics.ObserveImport(0, 0, err)
	}
	return res, err
}

// ImportFrom opens location (a local path or ftp:// URL) and imports it.
// The format is inferred from the location's extension when empty.
func (im *Importer) ImportFrom(ctx context.Context, location, format string, period model.Period) (*ImportResult, error) {
	if format == "" {
		format = fetcher.FormatFromName(location)
	}
	rc, err := fetcher.SourceFor(location, im.timeout).Open(ctx, location)
	if err != nil {
		im.metrics.ObserveImport(0, 0, err)
		return nil, eris.Wrap(err, "ingest: open extract")
	}
	defer rc.Close() //nolint:errcheck

	return im.Import(ctx, rc, format, period)
}

func (im *Importer) importExtract(ctx context.Context, r io.Reader, format string, period model.Period) (*ImportResult, error) {
	if err := model.Validate(period); err != nil {
		return nil, err
	}

	table, err := ParseTable(ctx, r, format)
	if err != nil {
		return nil, err
	}

	extracted, err := Extract(table.Rows, period, im.mapping)
	if err != nil {
		return nil, err
	}

	recs, dupes := dedupe(extracted.Records)
	if dupes > 0 {
		zap.L().Warn("ingest: duplicate advisor rows, keeping the last",
			zap.String("period", period.Label),
			zap.Int("duplicates", dupes),
		)
	}

	res := &ImportResult{
		Period:     period.Label,
		Rows:       len(table.Rows),
		Skipped:    extracted.Skipped,
		Duplicates: dupes,
	}

	n, err := im.store.ImportBatch(ctx, recs)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: write period %s", period.Label)
	}
	res.Written = n

	if nr, ok := im.store.(NameRecorder); ok && len(extracted.Names) > 0 {
		if err := nr.RecordAdvisorNames(ctx, extracted.Names); err != nil {
			zap.L().Warn("ingest: record advisor names", zap.Error(err))
		}
	}

	zap.L().Info("ingest: period imported",
		zap.String("period", period.Label),
		zap.Int("rows", res.Rows),
		zap.Int("skipped", res.Skipped),
		zap.Int64("written", res.Written),
	)
	return res, nil
}

// dedupe collapses records sharing an advisor ID. The last row wins, keeping
// the position of the first occurrence.
func dedupe(recs []model.PerformanceRecord) ([]model.PerformanceRecord, int) {
	idx := make(map[model.RecordKey]int, len(recs))
	out := make([]model.PerformanceRecord, 0, len(recs))
	dupes := 0
	for _, rec := range recs {
		if i, ok := idx[rec.Key()]; ok {
			out[i] = rec
			dupes++
			continue
		}
		idx[rec.Key()] = len(out)
		out = append(out, rec)
	}
	return out, dupes
}
