package bitable

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

// ChunkSize is the number of records sent per batch call
const ChunkSize = feishu.MaxPageSize

// DefaultChunkPause paces consecutive batch calls
const DefaultChunkPause = 500 * time.Millisecond

// Store is the subset of the Feishu client the engine needs
type Store interface {
	ListFields(ctx context.Context, app, table string) ([]feishu.Field, error)
	ListAllRecords(ctx context.Context, app, table string, opts feishu.ListOptions) ([]feishu.Record, error)
	BatchCreateRecords(ctx context.Context, app, table string, records []map[string]interface{}) ([]feishu.Record, error)
	BatchUpdateRecords(ctx context.Context, app, table string, records []feishu.Record) ([]feishu.Record, error)
}

// ChunkError records a failed batch without aborting the remaining ones
type ChunkError struct {
	Offset int    `json:"offset"`
	Count  int    `json:"count"`
	Error  string `json:"error"`
}

// BatchResult summarizes a batch create or update
type BatchResult struct {
	Done    int           `json:"done"`
	Total   int           `json:"total"`
	Errors  []ChunkError  `json:"errors,omitempty"`
	DryRun  bool          `json:"dry_run,omitempty"`
	Sample  []interface{} `json:"sample,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Engine runs bulk operations against bitable tables
type Engine struct {
	store     Store
	logger    *zap.Logger
	chunkSize int
	pause     time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithChunkPause sets the minimum spacing between batch calls. Zero disables pacing.
func WithChunkPause(d time.Duration) Option {
	return func(e *Engine) {
		e.pause = d
	}
}

// WithChunkSize overrides the batch size, capped at ChunkSize
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= ChunkSize {
			e.chunkSize = n
		}
	}
}

// NewEngine creates a new bitable engine
func NewEngine(store Store, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		logger:    logger,
		chunkSize: ChunkSize,
		pause:     DefaultChunkPause,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) limiter() *rate.Limiter {
	if e.pause <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(e.pause), 1)
}

// BatchCreate creates records in chunks. A failing chunk is recorded in the
// result and the remaining chunks still run.
func (e *Engine) BatchCreate(ctx context.Context, app, table string, records []map[string]interface{}, dryRun bool) (*BatchResult, error) {
	total := len(records)
	if total == 0 {
		return &BatchResult{Message: "no records to create"}, nil
	}
	if dryRun {
		res := &BatchResult{Total: total, DryRun: true}
		for i := 0; i < total && i < 3; i++ {
			res.Sample = append(res.Sample, records[i])
		}
		return res, nil
	}

	res := &BatchResult{Total: total}
	err := e.chunks(ctx, total, func(start, end int) error {
		_, err := e.store.BatchCreateRecords(ctx, app, table, records[start:end])
		return err
	}, res)
	if err != nil {
		return nil, err
	}

	e.logger.Info("batch create finished",
		zap.String("table", table),
		zap.Int("created", res.Done),
		zap.Int("total", total),
		zap.Int("failed_chunks", len(res.Errors)),
	)
	return res, nil
}

// BatchUpdate updates records in chunks. Every record must carry a RecordID.
func (e *Engine) BatchUpdate(ctx context.Context, app, table string, updates []feishu.Record, dryRun bool) (*BatchResult, error) {
	total := len(updates)
	if total == 0 {
		return &BatchResult{Message: "no records to update"}, nil
	}
	for i, u := range updates {
		if u.RecordID == "" {
			return nil, fmt.Errorf("update %d has no record_id", i)
		}
	}
	if dryRun {
		res := &BatchResult{Total: total, DryRun: true}
		for i := 0; i < total && i < 3; i++ {
			res.Sample = append(res.Sample, updates[i])
		}
		return res, nil
	}

	res := &BatchResult{Total: total}
	err := e.chunks(ctx, total, func(start, end int) error {
		_, err := e.store.BatchUpdateRecords(ctx, app, table, updates[start:end])
		return err
	}, res)
	if err != nil {
		return nil, err
	}

	e.logger.Info("batch update finished",
		zap.String("table", table),
		zap.Int("updated", res.Done),
		zap.Int("total", total),
		zap.Int("failed_chunks", len(res.Errors)),
	)
	return res, nil
}

// chunks calls fn for each [start, end) window. Only context cancellation
// aborts the loop.
func (e *Engine) chunks(ctx context.Context, total int, fn func(start, end int) error, res *BatchResult) error {
	limiter := e.limiter()
	for start := 0; start < total; start += e.chunkSize {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("failed waiting for batch slot: %w", err)
		}

		end := start + e.chunkSize
		if end > total {
			end = total
		}
		if err := fn(start, end); err != nil {
			e.logger.Warn("batch chunk failed",
				zap.Int("offset", start),
				zap.Int("count", end-start),
				zap.Error(err),
			)
			res.Errors = append(res.Errors, ChunkError{Offset: start, Count: end - start, Error: err.Error()})
			continue
		}
		res.Done += end - start
	}
	return nil
}

// Join inner-joins two tables on the text value of field on. Right-hand
// fields override left-hand fields of the same name. When selectFields is
// non-empty only those fields are kept.
func (e *Engine) Join(ctx context.Context, app, left, right, on string, selectFields []string) ([]map[string]interface{}, error) {
	var leftRecords, rightRecords []feishu.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := e.store.ListAllRecords(gctx, app, left, feishu.ListOptions{})
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", left, err)
		}
		leftRecords = recs
		return nil
	})
	g.Go(func() error {
		recs, err := e.store.ListAllRecords(gctx, app, right, feishu.ListOptions{})
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", right, err)
		}
		rightRecords = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := make(map[string][]map[string]interface{})
	for _, r := range rightRecords {
		if key, ok := ExtractText(r.Fields[on]); ok && key != "" {
			index[key] = append(index[key], r.Fields)
		}
	}

	keep := make(map[string]bool, len(selectFields))
	for _, f := range selectFields {
		keep[f] = true
	}

	results := []map[string]interface{}{}
	for _, l := range leftRecords {
		key, ok := ExtractText(l.Fields[on])
		if !ok || key == "" {
			continue
		}
		for _, rf := range index[key] {
			merged := make(map[string]interface{}, len(l.Fields)+len(rf))
			for k, v := range l.Fields {
				merged[k] = v
			}
			for k, v := range rf {
				merged[k] = v
			}
			if len(keep) > 0 {
				for k := range merged {
					if !keep[k] {
						delete(merged, k)
					}
				}
			}
			results = append(results, merged)
		}
	}

	e.logger.Debug("join finished",
		zap.String("left", left),
		zap.String("right", right),
		zap.Int("rows", len(results)),
	)
	return results, nil
}

// SnapshotField is a column entry of a snapshot file
type SnapshotField struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

// SnapshotRecord is a row entry of a snapshot file
type SnapshotRecord struct {
	RecordID string                 `json:"record_id"`
	Fields   map[string]interface{} `json:"fields"`
}

// Snapshot is the on-disk format written by Engine.Snapshot
type Snapshot struct {
	AppToken     string           `json:"app_token"`
	TableID      string           `json:"table_id"`
	SnapshotTime string           `json:"snapshot_time"`
	FieldCount   int              `json:"field_count"`
	RecordCount  int              `json:"record_count"`
	Fields       []SnapshotField  `json:"fields"`
	Records      []SnapshotRecord `json:"records"`
}

// Snapshot exports a table as <table>_<yyyymmdd_hhmmss>.json inside dir and
// returns the file path
func (e *Engine) Snapshot(ctx context.Context, app, table, dir string, now time.Time) (string, error) {
	fields, records, err := e.fetch(ctx, app, table)
	if err != nil {
		return "", err
	}

	snap := Snapshot{
		AppToken:     app,
		TableID:      table,
		SnapshotTime: now.Format("2006-01-02T15:04:05"),
		FieldCount:   len(fields),
		RecordCount:  len(records),
		Fields:       make([]SnapshotField, 0, len(fields)),
		Records:      make([]SnapshotRecord, 0, len(records)),
	}
	for _, f := range fields {
		snap.Fields = append(snap.Fields, SnapshotField{Name: f.FieldName, Type: f.Type})
	}
	for _, r := range records {
		fieldsCopy := r.Fields
		if fieldsCopy == nil {
			fieldsCopy = map[string]interface{}{}
		}
		snap.Records = append(snap.Records, SnapshotRecord{RecordID: r.RecordID, Fields: fieldsCopy})
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", table, now.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	e.logger.Info("snapshot written",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)
	return path, nil
}

// fetch loads the field list and every record of a table concurrently
func (e *Engine) fetch(ctx context.Context, app, table string) ([]feishu.Field, []feishu.Record, error) {
	var (
		fields  []feishu.Field
		records []feishu.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fs, err := e.store.ListFields(gctx, app, table)
		if err != nil {
			return fmt.Errorf("failed to list fields: %w", err)
		}
		fields = fs
		return nil
	})
	g.Go(func() error {
		rs, err := e.store.ListAllRecords(gctx, app, table, feishu.ListOptions{})
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}
		records = rs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return fields, records, nil
}
