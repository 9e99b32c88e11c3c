package grpcclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/deepfake-detector/internal/imageprocessor"
	"github.com/example/deepfake-detector/internal/model"
)

type stubClassifier struct {
	score    float32
	err      error
	received []float32
}

func (s *stubClassifier) Infer(ctx context.Context, tensor imageprocessor.Tensor) (float32, error) {
	s.received = tensor.Data
	return s.score, s.err
}

func (s *stubClassifier) Close() error { return nil }

func startServer(t *testing.T, classifier model.Classifier) grpc.DialOption {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	Serve(server, classifier)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	})
}

func testTensor() imageprocessor.Tensor {
	data := make([]float32, imageprocessor.InputSize*imageprocessor.InputSize*imageprocessor.Channels)
	for i := range data {
		data[i] = float32(i%256) / 255
	}
	return imageprocessor.Tensor{
		Shape: [4]int64{1, imageprocessor.InputSize, imageprocessor.InputSize, imageprocessor.Channels},
		Data:  data,
	}
}

func TestRemoteClassifierRoundTrip(t *testing.T) {
	stub := &stubClassifier{score: 0.2}
	dialer := startServer(t, stub)

	loader := model.NewLoader(DialClassifier("bufnet", zap.NewNop(), dialer))
	classifier, err := loader.Load()
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer loader.Close()

	tensor := testTensor()
	score, err := classifier.Infer(context.Background(), tensor)
	if err != nil {
		t.Fatalf("infer failed: %v", err)
	}
	if score != 0.2 {
		t.Fatalf("expected score 0.2, got %v", score)
	}
	if len(stub.received) != len(tensor.Data) || stub.received[300] != tensor.Data[300] {
		t.Fatal("server did not receive the tensor that was sent")
	}
}

func TestRemoteClassifierRejectsOutOfRangeScore(t *testing.T) {
	dialer := startServer(t, &stubClassifier{score: 1.5})

	classifier, err := DialClassifier("bufnet", zap.NewNop(), dialer)()
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer classifier.Close()

	_, err = classifier.Infer(context.Background(), testTensor())
	if !errors.Is(err, model.ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore, got %v", err)
	}
}

func TestRemoteClassifierPropagatesServerError(t *testing.T) {
	dialer := startServer(t, &stubClassifier{err: errors.New("gpu on fire")})

	classifier, err := DialClassifier("bufnet", zap.NewNop(), dialer)()
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer classifier.Close()

	if _, err := classifier.Infer(context.Background(), testTensor()); err == nil {
		t.Fatal("expected server error to surface")
	}
}
