package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/example/deepfake-detector/internal/imageprocessor"
)

// ErrInvalidScore is returned when a backend produces a score outside [0,1].
var ErrInvalidScore = errors.New("classifier score outside [0,1]")

// Classifier runs one forward pass of a binary real/deepfake model.
type Classifier interface {
	// Infer returns a single score in [0,1] for a batch-of-one tensor.
	Infer(ctx context.Context, tensor imageprocessor.Tensor) (float32, error)
	Close() error
}

// OpenFunc deserialises a classifier. It is called at most once per Loader.
type OpenFunc func() (Classifier, error)

// Loader memoises the result of opening a classifier. Every Load call after
// the first returns the same classifier or the same error, so a failed load
// is never retried.
type Loader struct {
	open OpenFunc

	once       sync.Once
	classifier Classifier
	err        error
}

// NewLoader wraps open in a one-time loader.
func NewLoader(open OpenFunc) *Loader {
	return &Loader{open: open}
}

// Load opens the classifier on first use.
func (l *Loader) Load() (Classifier, error) {
	l.once.Do(func() {
		l.classifier, l.err = l.open()
		if l.err == nil && l.classifier == nil {
			l.err = errors.New("classifier loader returned nil")
		}
	})
	return l.classifier, l.err
}

// Close releases the classifier if it was loaded successfully.
func (l *Loader) Close() error {
	classifier, err := l.Load()
	if err != nil {
		return nil
	}
	return classifier.Close()
}

// ValidateScore rejects NaN and out-of-range scores.
func ValidateScore(score float32) error {
	if math.IsNaN(float64(score)) || score < 0 || score > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}
	return nil
}
