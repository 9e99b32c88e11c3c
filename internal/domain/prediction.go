package domain

import (
	"fmt"
	"time"
)

// TimestampLayout is the wall-clock format shown next to predictions.
const TimestampLayout = "2006-01-02 15:04:05"

// DecisionBoundary splits raw classifier scores into the two labels.
const DecisionBoundary = 0.5

// Label is the verdict for one image.
type Label string

const (
	LabelReal     Label = "Real"
	LabelDeepfake Label = "Deepfake"
)

// PredictionResult is the outcome of one analysis.
type PredictionResult struct {
	Label Label `json:"label"`
	// Confidence is the distance of the raw score from the decision boundary
	// on the winning side, in percent. It is never above 50.
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Verdict maps a raw score in [0,1] to a label and confidence.
//
// Scores below the boundary are Deepfake with confidence raw*100; all other
// scores are Real with confidence (1-raw)*100. A raw score of 0.51 therefore
// reads as Real at 49%, not 51%.
func Verdict(raw float64) (Label, float64) {
	if raw < DecisionBoundary {
		return LabelDeepfake, raw * 100
	}
	return LabelReal, (1 - raw) * 100
}

// ConfidenceText formats the confidence with two decimals, e.g. "20.00%".
func (r PredictionResult) ConfidenceText() string {
	return FormatConfidence(r.Confidence)
}

// ShortConfidenceText formats the confidence with one decimal for captions.
func (r PredictionResult) ShortConfidenceText() string {
	return fmt.Sprintf("%.1f%%", r.Confidence)
}

// TimestampText renders the timestamp in local wall-clock time.
func (r PredictionResult) TimestampText() string {
	return r.Timestamp.Format(TimestampLayout)
}

// FormatConfidence renders a confidence percentage with two decimals.
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence)
}
