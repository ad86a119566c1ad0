package model

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// Options tune the ONNX Runtime environment and session.
type Options struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default lookup.
	LibraryPath string
	// IntraOpThreads of 0 leaves the runtime default.
	IntraOpThreads int
}

// Server owns the ONNX session. It is read-only after Load and safe for
// concurrent use.
type Server struct {
	session    *ort.DynamicAdvancedSession
	path       string
	inputName  string
	outputName string
}

// Load opens the model at path. Any error is fatal for startup.
func Load(path string, opts Options) (*Server, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at '%s'. Set MODEL_PATH env var or place the file there", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to read model signature: %w", ErrInvalidModel, err)
	}
	inputName, outputName, err := checkSignature(inputs, outputs)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}

	var sessionOpts *ort.SessionOptions
	if opts.IntraOpThreads > 0 {
		sessionOpts, err = ort.NewSessionOptions()
		if err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer sessionOpts.Destroy()
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputName}, []string{outputName}, sessionOpts)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrInvalidModel, err)
	}

	slog.Info("Model loaded", "path", path, "input", inputName, "output", outputName)

	return &Server{
		session:    session,
		path:       path,
		inputName:  inputName,
		outputName: outputName,
	}, nil
}

// checkSignature verifies the model takes one (N,224,224,3) float tensor and
// produces one score per class. Dynamic dimensions (<= 0) are accepted.
func checkSignature(inputs, outputs []ort.InputOutputInfo) (string, string, error) {
	if len(inputs) != 1 {
		return "", "", fmt.Errorf("%w: expected 1 input, got %d", ErrInvalidModel, len(inputs))
	}
	if len(outputs) < 1 {
		return "", "", fmt.Errorf("%w: model has no outputs", ErrInvalidModel)
	}

	in, out := inputs[0], outputs[0]
	if in.OrtValueType != ort.ONNXTypeTensor || in.DataType != ort.TensorElementDataTypeFloat {
		return "", "", fmt.Errorf("%w: input %q is not a float tensor", ErrInvalidModel, in.Name)
	}
	want := []int64{1, ImageSize, ImageSize, Channels}
	if len(in.Dimensions) != len(want) {
		return "", "", fmt.Errorf("%w: input %q has shape %v, want %v", ErrInvalidModel, in.Name, in.Dimensions, want)
	}
	for i, dim := range in.Dimensions {
		if dim > 0 && dim != want[i] {
			return "", "", fmt.Errorf("%w: input %q has shape %v, want %v", ErrInvalidModel, in.Name, in.Dimensions, want)
		}
	}

	if out.OrtValueType != ort.ONNXTypeTensor || out.DataType != ort.TensorElementDataTypeFloat {
		return "", "", fmt.Errorf("%w: output %q is not a float tensor", ErrInvalidModel, out.Name)
	}
	if len(out.Dimensions) != 2 {
		return "", "", fmt.Errorf("%w: output %q has shape %v, want (N, %d)", ErrInvalidModel, out.Name, out.Dimensions, len(Classes))
	}
	if last := out.Dimensions[len(out.Dimensions)-1]; last > 0 && last != int64(len(Classes)) {
		return "", "", fmt.Errorf("%w: output %q has %d classes, want %d", ErrInvalidModel, out.Name, last, len(Classes))
	}

	return in.Name, out.Name, nil
}

// Path is the file the model was loaded from.
func (s *Server) Path() string {
	return s.path
}

// Predict runs one forward pass. Tensors are allocated per call so
// concurrent callers never share buffers.
func (s *Server) Predict(t Tensor) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(t.Shape()...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(Classes))))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}

	scores := make([]float32, len(Classes))
	copy(scores, outputTensor.GetData())
	return scores, nil
}

func (s *Server) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
