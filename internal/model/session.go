package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var env struct {
	mu   sync.Mutex
	refs int
}

// acquireEnvironment initialises the ONNX runtime on first use. Every
// successful call must be paired with releaseEnvironment.
func acquireEnvironment(libPath string) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.refs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	env.refs++
	return nil
}

func releaseEnvironment() {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.refs--
	if env.refs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// Session is a loaded ONNX graph with preallocated input and output
// tensors. Runs are serialised since the tensors are shared.
type Session struct {
	Metadata Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewSession loads the graph at modelPath described by md.
func NewSession(libPath, modelPath string, md Metadata) (*Session, error) {
	if err := acquireEnvironment(libPath); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		Metadata:     md,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

type runResult struct {
	out []float32
	err error
}

// Run feeds input through the graph and returns a copy of the output. If
// ctx ends first Run returns ctx.Err(); the inference itself cannot be
// interrupted and finishes in the background.
func (s *Session) Run(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != s.Metadata.InputSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", s.Metadata.InputSize(), len(input))
	}

	done := make(chan runResult, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.session == nil {
			done <- runResult{err: fmt.Errorf("session closed")}
			return
		}
		copy(s.inputTensor.GetData(), input)
		if err := s.session.Run(); err != nil {
			done <- runResult{err: fmt.Errorf("inference failed: %w", err)}
			return
		}
		out := make([]float32, len(s.outputTensor.GetData()))
		copy(out, s.outputTensor.GetData())
		done <- runResult{out: out}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close destroys the session and its tensors.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	s.inputTensor.Destroy()
	s.outputTensor.Destroy()
	s.session.Destroy()
	s.session = nil
	releaseEnvironment()
	return nil
}
