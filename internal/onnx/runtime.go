// Package onnx runs the exported pose and clip-embedding models with
// ONNX Runtime.
package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// Init loads the ONNX Runtime shared library (when libPath is set) and
// initializes the process-wide environment. Calls are reference counted
// and must be paired with Shutdown.
func Init(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	envRefs++
	return nil
}

// Shutdown releases the environment once the last user is done
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs > 0 {
		return nil
	}
	return ort.DestroyEnvironment()
}

// session wraps a dynamic session with a single float32 input
type session struct {
	path    string
	inner   *ort.DynamicAdvancedSession
	outputs int
}

func newSession(path string, inputs, outputs []string) (*session, error) {
	s, err := ort.NewDynamicAdvancedSession(path, inputs, outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", path, err)
	}
	return &session{path: path, inner: s, outputs: len(outputs)}, nil
}

// run feeds one float32 tensor and returns a copy of every float32 output
func (s *session) run(input []float32, shape []int64) ([][]float32, error) {
	in, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	// nil outputs are allocated by the runtime
	outs := make([]ort.Value, s.outputs)
	if err := s.inner.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	result := make([][]float32, len(outs))
	for i, o := range outs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %d of %s is not a float32 tensor", i, s.path)
		}
		result[i] = append([]float32(nil), t.GetData()...)
	}
	return result, nil
}

func (s *session) close() error {
	if s == nil || s.inner == nil {
		return nil
	}
	return s.inner.Destroy()
}
