// Package store persists scan history in Postgres. The core pipeline
// never reads it back; rows exist for the finance layer that consumes
// scans downstream.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"receipt-ocr/api/internal/processor"
)

var ErrNotFound = sql.ErrNoRows

// ScanRepo keeps one row per distinct receipt image in receipt_scans,
// keyed by the content hash. Rescanning the same image overwrites the
// previous row.
type ScanRepo struct{ DB *sql.DB }

func NewScanRepo(db *sql.DB) *ScanRepo { return &ScanRepo{DB: db} }

// Save upserts the scan keyed by image hash. The category column holds
// the suggested category, the processor's final verdict; the raw model
// category stays inside result_json.
func (r *ScanRepo) Save(ctx context.Context, imageHash, fileName string, res *processor.EnrichedResult) error {
	js, _ := json.Marshal(res)
	const q = `
insert into receipt_scans (
  id, image_hash, file_name,
  amount, purchased_at, description, category, merchant,
  strategy, model, confidence_score, is_fallback, result_json
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
on conflict (image_hash) do update
set file_name = excluded.file_name,
    amount = excluded.amount,
    purchased_at = excluded.purchased_at,
    description = excluded.description,
    category = excluded.category,
    merchant = excluded.merchant,
    strategy = excluded.strategy,
    model = excluded.model,
    confidence_score = excluded.confidence_score,
    is_fallback = excluded.is_fallback,
    result_json = excluded.result_json,
    created_at = now()`
	_, err := r.DB.ExecContext(ctx, q,
		uuid.NewString(), imageHash, fileName,
		res.Amount, res.Date, res.Description, res.SuggestedCategory, res.MerchantName,
		string(res.Strategy), res.Model, res.ConfidenceScore, res.IsFallback, js,
	)
	return err
}

// PurgeOlderThan trims old scan rows so the table does not grow without
// bound. Returns the number of rows removed.
func (r *ScanRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from receipt_scans where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
