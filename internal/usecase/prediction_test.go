package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/deepfake-detector/internal/domain"
	"github.com/example/deepfake-detector/internal/history"
	"github.com/example/deepfake-detector/internal/imageprocessor"
	"github.com/example/deepfake-detector/internal/logging"
)

type stubClassifier struct {
	score  float32
	err    error
	calls  int
	shapes [][4]int64
}

func (s *stubClassifier) Infer(ctx context.Context, tensor imageprocessor.Tensor) (float32, error) {
	s.calls++
	s.shapes = append(s.shapes, tensor.Shape)
	return s.score, s.err
}

func (s *stubClassifier) Close() error { return nil }

type failingStore struct {
	*history.MemoryStore
	appendErr error
}

func (f *failingStore) Append(ctx context.Context, sessionID string, entry history.Entry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.MemoryStore.Append(ctx, sessionID, entry)
}

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func newTestUseCase(classifier *stubClassifier, store history.Store) *PredictionUseCase {
	uc := NewPredictionUseCase(classifier, store, zap.NewNop(), 0)
	uc.now = func() time.Time { return fixedNow }
	return uc
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyzeRecordsPrediction(t *testing.T) {
	classifier := &stubClassifier{score: 0.2}
	store := history.NewMemoryStore(0)
	uc := newTestUseCase(classifier, store)

	entry, err := uc.Analyze(context.Background(), "session-1", pngBytes(t))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if entry.Result.Label != domain.LabelDeepfake {
		t.Fatalf("expected Deepfake, got %s", entry.Result.Label)
	}
	if got := entry.Result.ConfidenceText(); got != "20.00%" {
		t.Fatalf("expected 20.00%%, got %s", got)
	}
	if !entry.Result.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected timestamp: %s", entry.Result.Timestamp)
	}
	if len(entry.Thumbnail) == 0 {
		t.Fatal("expected a thumbnail")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(entry.Preview))
	if err != nil || format != "jpeg" || cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("expected a 64x48 jpeg preview, got %s %dx%d (%v)", format, cfg.Width, cfg.Height, err)
	}
	if classifier.shapes[0] != [4]int64{1, 224, 224, 3} {
		t.Fatalf("unexpected tensor shape: %v", classifier.shapes[0])
	}

	recent, _ := store.Recent(context.Background(), "session-1", history.DisplayLimit)
	if len(recent) != 1 || recent[0].ID != entry.ID {
		t.Fatalf("expected entry to be recorded, got %+v", recent)
	}
}

func TestAnalyzeMapsHighScoreToReal(t *testing.T) {
	uc := newTestUseCase(&stubClassifier{score: 0.9}, history.NewMemoryStore(0))

	entry, err := uc.Analyze(context.Background(), "s", pngBytes(t))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if entry.Result.Label != domain.LabelReal || entry.Result.ConfidenceText() != "10.00%" {
		t.Fatalf("expected Real 10.00%%, got %s %s", entry.Result.Label, entry.Result.ConfidenceText())
	}
}

func TestAnalyzeRejectsNonImageWithoutRecording(t *testing.T) {
	classifier := &stubClassifier{score: 0.9}
	store := history.NewMemoryStore(0)
	uc := newTestUseCase(classifier, store)

	_, err := uc.Analyze(context.Background(), "s", []byte("%PDF-1.4 not an image"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrInvalidImage) || !errors.Is(err, imageprocessor.ErrUnsupportedFormat) {
		t.Fatalf("expected invalid image error, got %v", err)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "usecase.decode_image" {
		t.Fatalf("expected decode OperationError, got %v", err)
	}
	if classifier.calls != 0 {
		t.Fatal("classifier must not run for rejected uploads")
	}
	all, _ := store.All(context.Background(), "s")
	if len(all) != 0 {
		t.Fatalf("expected history unchanged, got %d entries", len(all))
	}
}

func TestAnalyzeInferenceFailureRecordsNothing(t *testing.T) {
	store := history.NewMemoryStore(0)
	uc := newTestUseCase(&stubClassifier{err: errors.New("session crashed")}, store)

	_, err := uc.Analyze(context.Background(), "s", pngBytes(t))
	if logging.OperationOf(err) != "usecase.predict" {
		t.Fatalf("expected predict OperationError, got %v", err)
	}
	if errors.Is(err, ErrInvalidImage) {
		t.Fatal("inference failures are not input errors")
	}
	all, _ := store.All(context.Background(), "s")
	if len(all) != 0 {
		t.Fatalf("expected history unchanged, got %d entries", len(all))
	}
}

func TestAnalyzeSurfacesStoreFailure(t *testing.T) {
	store := &failingStore{MemoryStore: history.NewMemoryStore(0), appendErr: errors.New("redis down")}
	uc := newTestUseCase(&stubClassifier{score: 0.4}, store)

	_, err := uc.Analyze(context.Background(), "s", pngBytes(t))
	if logging.OperationOf(err) != "usecase.append_history" {
		t.Fatalf("expected append OperationError, got %v", err)
	}
}

func TestAnalyzeDelayHonoursCancellation(t *testing.T) {
	store := history.NewMemoryStore(0)
	uc := newTestUseCase(&stubClassifier{score: 0.3}, store)
	uc.delay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := uc.Analyze(ctx, "s", pngBytes(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	all, _ := store.All(context.Background(), "s")
	if len(all) != 0 {
		t.Fatal("cancelled interactions must not be recorded")
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	uc := newTestUseCase(&stubClassifier{score: 0.51}, history.NewMemoryStore(0))
	img, err := imageprocessor.Decode(pngBytes(t))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	first, err := uc.Predict(context.Background(), img)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	second, _ := uc.Predict(context.Background(), img)
	if first != second {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
	if first.Label != domain.LabelReal || math.Abs(first.Confidence-49) > 1e-4 {
		t.Fatalf("expected Real ~49%%, got %s %v", first.Label, first.Confidence)
	}
}

func TestReportAndEndSession(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore(0)
	uc := newTestUseCase(&stubClassifier{score: 0.2}, store)

	entry, err := uc.Analyze(ctx, "s", pngBytes(t))
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	doc, err := uc.Report(ctx, "s", entry.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF-")) {
		t.Fatal("expected a PDF document")
	}

	if _, err := uc.Report(ctx, "other-session", entry.ID); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another session, got %v", err)
	}

	if err := uc.EndSession(ctx, "s"); err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if _, err := uc.Entry(ctx, "s", entry.ID); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected history to be cleared, got %v", err)
	}
}

func TestGetSessionSummary(t *testing.T) {
	ctx := context.Background()
	classifier := &stubClassifier{}
	uc := newTestUseCase(classifier, history.NewMemoryStore(0))

	for _, score := range []float32{0.2, 0.9, 0.4} {
		classifier.score = score
		if _, err := uc.Analyze(ctx, "s", pngBytes(t)); err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
	}

	summary, err := uc.GetSessionSummary(ctx, "s")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.TotalPredictions != 3 || summary.RealCount != 1 || summary.DeepfakeCount != 2 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if math.Abs(summary.AverageConfidence-(20+10+40)/3.0) > 1e-4 {
		t.Fatalf("unexpected average confidence: %v", summary.AverageConfidence)
	}

	empty, _ := uc.GetSessionSummary(ctx, "nobody")
	if empty.TotalPredictions != 0 || empty.AverageConfidence != 0 {
		t.Fatalf("expected empty summary, got %+v", empty)
	}
}
