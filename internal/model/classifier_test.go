package model

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/example/deepfake-detector/internal/imageprocessor"
)

type stubClassifier struct {
	closed bool
}

func (s *stubClassifier) Infer(ctx context.Context, tensor imageprocessor.Tensor) (float32, error) {
	return 0.5, nil
}

func (s *stubClassifier) Close() error {
	s.closed = true
	return nil
}

func TestLoaderOpensOnceUnderConcurrency(t *testing.T) {
	var calls int32
	stub := &stubClassifier{}
	loader := NewLoader(func() (Classifier, error) {
		atomic.AddInt32(&calls, 1)
		return stub, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := loader.Load()
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if got != stub {
				t.Errorf("expected memoized classifier, got %p", got)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected open to run once, ran %d times", calls)
	}
	if err := loader.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !stub.closed {
		t.Fatal("expected classifier to be closed")
	}
}

func TestLoaderMemoizesFailure(t *testing.T) {
	calls := 0
	boom := errors.New("corrupt artifact")
	loader := NewLoader(func() (Classifier, error) {
		calls++
		return nil, boom
	})

	for i := 0; i < 3; i++ {
		if _, err := loader.Load(); !errors.Is(err, boom) {
			t.Fatalf("expected memoized error, got %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single open attempt, got %d", calls)
	}
	if err := loader.Close(); err != nil {
		t.Fatalf("close of failed loader should be a no-op, got %v", err)
	}
}

func TestLoaderRejectsNilClassifier(t *testing.T) {
	loader := NewLoader(func() (Classifier, error) { return nil, nil })
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for nil classifier")
	}
}

func TestOpenONNXFailsFastOnMissingArtifact(t *testing.T) {
	open := OpenONNX(ONNXOptions{ModelPath: t.TempDir() + "/missing.onnx", InputName: "input", OutputName: "output"})
	if _, err := open(); err == nil {
		t.Fatal("expected missing model to fail")
	}
}

func TestValidateScore(t *testing.T) {
	for _, score := range []float32{0, 0.5, 1} {
		if err := ValidateScore(score); err != nil {
			t.Fatalf("score %v: unexpected error %v", score, err)
		}
	}
	for _, score := range []float32{-0.1, 1.01, float32(math.NaN())} {
		if err := ValidateScore(score); !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("score %v: expected ErrInvalidScore, got %v", score, err)
		}
	}
}
