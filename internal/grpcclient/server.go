package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/deepfake-detector/internal/imageprocessor"
	"github.com/example/deepfake-detector/internal/model"
)

// ClassifierServer is implemented by processes that serve InferMethod.
type ClassifierServer interface {
	Infer(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.FloatValue, error)
}

// ServiceDesc describes the deepfake.v1.Classifier service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "deepfake.v1.Classifier",
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Infer",
			Handler:    inferHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deepfake/v1/classifier.proto",
}

func inferHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InferMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClassifierServer).Infer(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Serve exposes a local classifier over gRPC, so a single process holding the
// model can serve several front ends.
func Serve(s *grpc.Server, classifier model.Classifier) {
	s.RegisterService(&ServiceDesc, &classifierService{classifier: classifier})
}

type classifierService struct {
	classifier model.Classifier
}

func (c *classifierService) Infer(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.FloatValue, error) {
	tensor, err := imageprocessor.TensorFromBytes(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	score, err := c.classifier.Infer(ctx, tensor)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Float(score), nil
}
