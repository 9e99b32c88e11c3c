package usecase

import (
	"context"

	"github.com/example/deepfake-detector/internal/domain"
	"github.com/example/deepfake-detector/internal/logging"
)

// SessionSummary aggregates the predictions made in one session.
type SessionSummary struct {
	TotalPredictions  int     `json:"total_predictions"`
	RealCount         int     `json:"real_count"`
	DeepfakeCount     int     `json:"deepfake_count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// GetSessionSummary aggregates over the session's whole history, not only the
// displayed entries.
func (uc *PredictionUseCase) GetSessionSummary(ctx context.Context, sessionID string) (*SessionSummary, error) {
	entries, err := uc.history.All(ctx, sessionID)
	if err != nil {
		return nil, logging.NewOperationError("usecase.session_summary", "", err)
	}

	summary := &SessionSummary{TotalPredictions: len(entries)}
	var total float64
	for _, entry := range entries {
		switch entry.Result.Label {
		case domain.LabelReal:
			summary.RealCount++
		case domain.LabelDeepfake:
			summary.DeepfakeCount++
		}
		total += entry.Result.Confidence
	}
	if summary.TotalPredictions > 0 {
		summary.AverageConfidence = total / float64(summary.TotalPredictions)
	}
	return summary, nil
}
