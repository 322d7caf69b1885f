// Package silero runs the Silero VAD ONNX model for per-frame speech
// probabilities. The model is recurrent: hidden state carries across frames,
// so one instance serves exactly one audio stream.
package silero

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/drewpri411/kaathumaaa/pkg/ai/vad"
	"github.com/drewpri411/kaathumaaa/pkg/rtc"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func ensureOrtEnv() error {
	ortInitOnce.Do(func() {
		if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
			ort.SetSharedLibraryPath(path)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// VAD wraps a Silero ONNX session.
type VAD struct {
	session    *ort.DynamicAdvancedSession
	sampleRate int

	// LSTM state, 2x1x64 each, carried between frames
	h []float32
	c []float32
}

// Config holds Silero VAD configuration.
type Config struct {
	ModelPath  string
	SampleRate int
}

// New loads the Silero model. Callers fall back to the energy detector when
// this returns an error (missing model file, missing onnxruntime library).
func New(cfg Config) (*VAD, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("silero model not found at %s: %w", cfg.ModelPath, err)
	}
	if err := ensureOrtEnv(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input", "h", "c", "sr"},
		[]string{"output", "hn", "cn"},
		opts)
	if err != nil {
		return nil, fmt.Errorf("create silero session: %w", err)
	}

	return &VAD{
		session:    session,
		sampleRate: cfg.SampleRate,
		h:          make([]float32, 2*1*64),
		c:          make([]float32, 2*1*64),
	}, nil
}

// Probability runs one frame through the model and returns the speech
// probability, updating the recurrent state.
func (v *VAD) Probability(ctx context.Context, frame *rtc.AudioFrame) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	samples := frame.Samples()
	input := make([]float32, len(samples))
	for i, s := range samples {
		input[i] = float32(s) / 32768.0
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, fmt.Errorf("input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	hTensor, err := ort.NewTensor(ort.NewShape(2, 1, 64), v.h)
	if err != nil {
		return 0, fmt.Errorf("h tensor: %w", err)
	}
	defer hTensor.Destroy()

	cTensor, err := ort.NewTensor(ort.NewShape(2, 1, 64), v.c)
	if err != nil {
		return 0, fmt.Errorf("c tensor: %w", err)
	}
	defer cTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(v.sampleRate)})
	if err != nil {
		return 0, fmt.Errorf("sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := make([]ort.Value, 3)
	err = v.session.Run(
		[]ort.Value{inputTensor, hTensor, cTensor, srTensor},
		outputs,
	)
	if err != nil {
		return 0, fmt.Errorf("silero inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	prob := outputs[0].(*ort.Tensor[float32]).GetData()[0]
	copy(v.h, outputs[1].(*ort.Tensor[float32]).GetData())
	copy(v.c, outputs[2].(*ort.Tensor[float32]).GetData())

	return prob, nil
}

// Reset clears the recurrent state.
func (v *VAD) Reset() {
	for i := range v.h {
		v.h[i] = 0
		v.c[i] = 0
	}
}

// Capabilities returns the model's capabilities.
func (v *VAD) Capabilities() vad.Capabilities {
	return vad.Capabilities{SampleRates: []int{8000, 16000}, ModelBacked: true}
}

// Close releases the ONNX session.
func (v *VAD) Close() error {
	if v.session != nil {
		return v.session.Destroy()
	}
	return nil
}
