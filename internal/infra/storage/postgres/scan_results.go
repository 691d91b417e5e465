// Package postgres persists scan results in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

var _ wifi.ScanResultRepository = (*ScanResultStore)(nil)

// ScanResultStore records each saved full-scan result list as a batch.
type ScanResultStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewScanResultStore creates a PostgreSQL-backed ScanResultRepository.
func NewScanResultStore(pool *pgxpool.Pool, tracer trace.Tracer) *ScanResultStore {
	return &ScanResultStore{pool: pool, tracer: tracer}
}

const (
	insertBatchQuery = `INSERT INTO scan_result_batches (result_count) VALUES ($1) RETURNING id`

	latestBatchQuery = `
SELECT r.bssid, r.ssid, r.frequency, r.rssi, r.capabilities, r.observed_at
FROM scan_results r
WHERE r.batch_id = (SELECT MAX(id) FROM scan_result_batches)
ORDER BY r.rssi DESC, r.id ASC
LIMIT $1`
)

var scanResultColumns = []string{"batch_id", "bssid", "ssid", "frequency", "rssi", "capabilities", "observed_at"}

// SaveScanResults stores results as a new batch in one transaction. An empty
// list is still recorded so the latest batch reflects an empty scan.
func (s *ScanResultStore) SaveScanResults(ctx context.Context, results []wifi.ScanInfo) error {
	dbAttrs := append(defaultDBAttributes, attribute.Int("result_count", len(results)))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.scan_results.save", dbAttrs, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var batchID int64
		if err := tx.QueryRow(ctx, insertBatchQuery, len(results)).Scan(&batchID); err != nil {
			return fmt.Errorf("failed to insert scan result batch: %w", err)
		}

		rows := make([][]any, 0, len(results))
		for _, r := range results {
			rows = append(rows, []any{
				batchID,
				r.BSSID,
				r.SSID,
				r.Frequency,
				r.RSSI,
				r.Capabilities,
				pgtype.Timestamptz{Time: r.Timestamp, Valid: !r.Timestamp.IsZero()},
			})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"scan_results"}, scanResultColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to copy scan results (batch %d): %w", batchID, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit scan results: %w", err)
		}
		return nil
	})
}

// LatestScanResults returns up to limit entries of the most recent batch,
// strongest signal first.
func (s *ScanResultStore) LatestScanResults(ctx context.Context, limit int) ([]wifi.ScanInfo, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	dbAttrs := append(defaultDBAttributes, attribute.Int("limit", limit))

	var results []wifi.ScanInfo
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.scan_results.latest", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, latestBatchQuery, limit)
		if err != nil {
			return fmt.Errorf("failed to query latest scan results: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				info       wifi.ScanInfo
				observedAt pgtype.Timestamptz
			)
			if err := rows.Scan(&info.BSSID, &info.SSID, &info.Frequency, &info.RSSI, &info.Capabilities, &observedAt); err != nil {
				return fmt.Errorf("failed to scan result row: %w", err)
			}
			if observedAt.Valid {
				info.Timestamp = observedAt.Time.UTC()
			}
			results = append(results, info)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
