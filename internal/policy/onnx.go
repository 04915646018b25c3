package policy

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"adaptrader/internal/core"
)

// ONNXScorer scores states with a pre-trained model exported with a
// [1,3] float input named "input" and a [1,3] float output named "output".
type ONNXScorer struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	}
	return "/usr/lib/libonnxruntime.so"
}

func initializeRuntime(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		libraryPath = defaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)
	return ort.InitializeEnvironment()
}

func NewONNXScorer(modelPath, libraryPath string) (*ONNXScorer, error) {
	if err := initializeRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, inputSize), make([]float32, inputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, core.NumActions))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session for %s: %w", modelPath, err)
	}

	return &ONNXScorer{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

func (m *ONNXScorer) Scores(features []float64) ([]float64, error) {
	if len(features) != inputSize {
		return nil, fmt.Errorf("expected %d features, got %d", inputSize, len(features))
	}
	data := m.input.GetData()
	for i, v := range features {
		data[i] = float32(v)
	}
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	raw := m.output.GetData()
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

func (m *ONNXScorer) Close() error {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
	return nil
}
