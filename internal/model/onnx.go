package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/example/deepfake-detector/internal/imageprocessor"
)

// ONNXOptions configures the local ONNX Runtime backend.
type ONNXOptions struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library; empty keeps the
	// library default.
	LibraryPath string
	InputName   string
	OutputName  string
}

var ortEnv struct {
	once sync.Once
	err  error
}

func initEnvironment(libraryPath string) error {
	ortEnv.once.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortEnv.err = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return ortEnv.err
}

// ONNXClassifier runs a single-output sigmoid model through ONNX Runtime.
// Tensors are allocated per call, so Infer is safe for concurrent use.
type ONNXClassifier struct {
	session *ort.DynamicAdvancedSession
}

// OpenONNX returns an OpenFunc that loads the model described by opts.
func OpenONNX(opts ONNXOptions) OpenFunc {
	return func() (Classifier, error) {
		if opts.ModelPath == "" {
			return nil, errors.New("model path is empty")
		}
		if _, err := os.Stat(opts.ModelPath); err != nil {
			return nil, fmt.Errorf("model artifact: %w", err)
		}
		if err := initEnvironment(opts.LibraryPath); err != nil {
			return nil, err
		}

		session, err := ort.NewDynamicAdvancedSession(opts.ModelPath,
			[]string{opts.InputName}, []string{opts.OutputName}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create ONNX session: %w", err)
		}
		return &ONNXClassifier{session: session}, nil
	}
}

// Infer implements Classifier.
func (c *ONNXClassifier) Infer(ctx context.Context, tensor imageprocessor.Tensor) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	input, err := ort.NewTensor(ort.NewShape(tensor.Shape[:]...), tensor.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	data := output.GetData()
	if len(data) == 0 {
		return 0, errors.New("inference produced no output")
	}
	if err := ValidateScore(data[0]); err != nil {
		return 0, err
	}
	return data[0], nil
}

// Close destroys the session and the ONNX environment.
func (c *ONNXClassifier) Close() error {
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}
