package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/deepfake-detector/internal/imageprocessor"
	"github.com/example/deepfake-detector/internal/logging"
	"github.com/example/deepfake-detector/internal/model"
)

// InferMethod is the full gRPC method name served by remote classifiers.
const InferMethod = "/deepfake.v1.Classifier/Infer"

const dialTimeout = 5 * time.Second

// DialClassifier returns an OpenFunc that blocks until the remote classifier
// at addr is reachable. Extra dial options are appended after the defaults.
func DialClassifier(addr string, logger *zap.Logger, opts ...grpc.DialOption) model.OpenFunc {
	return func() (model.Classifier, error) {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()

		dialOpts := append([]grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithBlock(),
		}, opts...)

		conn, err := grpc.DialContext(ctx, addr, dialOpts...)
		if err != nil {
			wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
			logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
			return nil, wrapped
		}
		return &remoteClassifier{conn: conn, logger: logger.Named("grpc_classifier")}, nil
	}
}

type remoteClassifier struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

func (r *remoteClassifier) Infer(ctx context.Context, tensor imageprocessor.Tensor) (float32, error) {
	req := wrapperspb.Bytes(tensor.Bytes())
	resp := new(wrapperspb.FloatValue)
	if err := r.conn.Invoke(ctx, InferMethod, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.infer", "", err)
		r.logger.Error("classifier call failed", zap.Error(wrapped))
		return 0, wrapped
	}

	score := resp.GetValue()
	if err := model.ValidateScore(score); err != nil {
		return 0, logging.NewOperationError("grpcclient.infer", "", err)
	}
	return score, nil
}

func (r *remoteClassifier) Close() error {
	return r.conn.Close()
}
