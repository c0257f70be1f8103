package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/fortuna/mvp/internal/store"
)

// PredictionRepository handles published season rankings.
type PredictionRepository struct {
	db *store.Database
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *store.Database) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// SaveBatch bulk-inserts one ranking in a single transaction. Rows of a
// batch share created_at, which identifies the batch.
func (r *PredictionRepository) SaveBatch(ctx context.Context, preds []*store.Prediction) error {
	if len(preds) == 0 {
		return nil
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prediction batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("mvp_predictions",
		"run_id", "season", "rank", "player_name", "score", "percent", "is_mvp", "model_version"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, p := range preds {
		if _, err := stmt.ExecContext(ctx,
			p.RunID, p.Season, p.Rank, p.PlayerName, p.Score, p.Percent, p.IsMVP, p.ModelVersion,
		); err != nil {
			stmt.Close()
			return fmt.Errorf("copy prediction %s: %w", p.PlayerName, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prediction batch: %w", err)
	}
	return nil
}

// LatestBySeason returns the most recent batch for a season, by rank.
func (r *PredictionRepository) LatestBySeason(ctx context.Context, season, limit int) ([]*store.Prediction, error) {
	query := `
		SELECT prediction_id, run_id, season, rank, player_name, score, percent,
			is_mvp, model_version, created_at
		FROM mvp_predictions
		WHERE season = $1
			AND created_at = (SELECT MAX(created_at) FROM mvp_predictions WHERE season = $1)
		ORDER BY rank
		LIMIT $2
	`

	rows, err := r.db.DB().QueryContext(ctx, query, season, limit)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var preds []*store.Prediction
	for rows.Next() {
		p := &store.Prediction{}
		if err := rows.Scan(
			&p.PredictionID, &p.RunID, &p.Season, &p.Rank, &p.PlayerName, &p.Score,
			&p.Percent, &p.IsMVP, &p.ModelVersion, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		preds = append(preds, p)
	}

	return preds, rows.Err()
}
