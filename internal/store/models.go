package store

import (
	"database/sql"
	"time"
)

// Prediction is one ranked player of a published season ranking.
type Prediction struct {
	PredictionID int64           `json:"prediction_id" db:"prediction_id"`
	RunID        sql.NullString  `json:"run_id,omitempty" db:"run_id"`
	Season       int             `json:"season" db:"season"`
	Rank         int             `json:"rank" db:"rank"`
	PlayerName   string          `json:"player_name" db:"player_name"`
	Score        float64         `json:"score" db:"score"`
	Percent      sql.NullFloat64 `json:"percent,omitempty" db:"percent"`
	IsMVP        bool            `json:"is_mvp" db:"is_mvp"`
	ModelVersion string          `json:"model_version" db:"model_version"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
