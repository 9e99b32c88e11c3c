package usecase

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/deepfake-detector/internal/domain"
	"github.com/example/deepfake-detector/internal/history"
	"github.com/example/deepfake-detector/internal/imageprocessor"
	"github.com/example/deepfake-detector/internal/logging"
	"github.com/example/deepfake-detector/internal/model"
	"github.com/example/deepfake-detector/internal/report"
)

// ErrInvalidImage marks failures caused by the uploaded bytes rather than the
// service.
var ErrInvalidImage = errors.New("invalid image")

// PredictionUseCase runs images through the classifier and records the
// results in the caller's session history.
type PredictionUseCase struct {
	classifier model.Classifier
	history    history.Store
	logger     *zap.Logger
	delay      time.Duration
	now        func() time.Time
	newID      func() string
}

// NewPredictionUseCase constructs a use case. delay is the pause inserted
// before a result is returned; zero disables it.
func NewPredictionUseCase(classifier model.Classifier, store history.Store, logger *zap.Logger, delay time.Duration) *PredictionUseCase {
	return &PredictionUseCase{
		classifier: classifier,
		history:    store,
		logger:     logger.Named("prediction_usecase"),
		delay:      delay,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Predict preprocesses img, runs one inference and maps the score to a label
// and confidence.
func (uc *PredictionUseCase) Predict(ctx context.Context, img image.Image) (domain.PredictionResult, error) {
	tensor := imageprocessor.ToTensor(img)

	start := time.Now()
	raw, err := uc.classifier.Infer(ctx, tensor)
	if err != nil {
		return domain.PredictionResult{}, err
	}
	uc.logger.Debug("inference complete", zap.Float32("raw_score", raw), zap.Duration("latency", time.Since(start)))

	label, confidence := domain.Verdict(float64(raw))
	return domain.PredictionResult{
		Label:      label,
		Confidence: confidence,
		Timestamp:  uc.now(),
	}, nil
}

// Analyze handles one upload: decode, convert to RGB once, predict, wait out
// the display delay, then record the result with its gallery thumbnail and
// display preview. Nothing is recorded unless every step succeeds.
func (uc *PredictionUseCase) Analyze(ctx context.Context, sessionID string, data []byte) (*history.Entry, error) {
	requestID := uc.newID()
	opLogger := logging.WithSession(logging.WithOperation(uc.logger, "usecase.analyze", requestID), sessionID)

	img, err := imageprocessor.Decode(data)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_image", requestID, errors.Join(ErrInvalidImage, err))
		opLogger.Warn("rejected upload", zap.Error(wrapped), zap.Int("bytes", len(data)))
		return nil, wrapped
	}

	rgb := imageprocessor.ToRGB(img)

	result, err := uc.Predict(ctx, rgb)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.predict", requestID, err)
		opLogger.Error("prediction failed", zap.Error(wrapped))
		return nil, wrapped
	}

	if err := uc.wait(ctx); err != nil {
		return nil, logging.NewOperationError("usecase.delay", requestID, err)
	}

	thumbnail, err := imageprocessor.Thumbnail(rgb)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.thumbnail", requestID, err)
		opLogger.Error("failed to build thumbnail", zap.Error(wrapped))
		return nil, wrapped
	}
	preview, err := imageprocessor.Preview(rgb)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.preview", requestID, err)
		opLogger.Error("failed to build preview", zap.Error(wrapped))
		return nil, wrapped
	}

	entry := history.Entry{
		ID:        requestID,
		Result:    result,
		Thumbnail: thumbnail,
		Preview:   preview,
	}
	if err := uc.history.Append(ctx, sessionID, entry); err != nil {
		wrapped := logging.NewOperationError("usecase.append_history", requestID, err)
		opLogger.Error("failed to record prediction", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("image analyzed",
		zap.String("label", string(result.Label)),
		zap.Float64("confidence", result.Confidence),
	)
	return &entry, nil
}

func (uc *PredictionUseCase) wait(ctx context.Context) error {
	if uc.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(uc.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recent returns the session's last n predictions, most recent first.
func (uc *PredictionUseCase) Recent(ctx context.Context, sessionID string, n int) ([]history.Entry, error) {
	entries, err := uc.history.Recent(ctx, sessionID, n)
	if err != nil {
		return nil, logging.NewOperationError("usecase.recent_history", "", err)
	}
	return entries, nil
}

// Entry looks up one prediction in the session's history.
func (uc *PredictionUseCase) Entry(ctx context.Context, sessionID, entryID string) (history.Entry, error) {
	entry, err := uc.history.Get(ctx, sessionID, entryID)
	if err != nil {
		return history.Entry{}, logging.NewOperationError("usecase.get_history", entryID, err)
	}
	return entry, nil
}

// Report renders the PDF for one recorded prediction.
func (uc *PredictionUseCase) Report(ctx context.Context, sessionID, entryID string) ([]byte, error) {
	entry, err := uc.Entry(ctx, sessionID, entryID)
	if err != nil {
		return nil, err
	}
	doc, err := report.Render(entry.Result.Label, entry.Result.Confidence)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.render_report", entryID, err)
		uc.logger.Error("report rendering failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return doc, nil
}

// EndSession drops everything recorded for the session.
func (uc *PredictionUseCase) EndSession(ctx context.Context, sessionID string) error {
	if err := uc.history.Clear(ctx, sessionID); err != nil {
		return logging.NewOperationError("usecase.end_session", "", err)
	}
	logging.WithSession(uc.logger, sessionID).Info("session ended")
	return nil
}
