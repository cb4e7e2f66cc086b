//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/niteru/internal/models"
)

// ONNXEmbedder runs an audio embedding model over fixed windows of the clip and mean-pools
// the window embeddings. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session   *ort.AdvancedSession
	cfg       ONNXConfig
	frameSize int
	hopSize   int
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	mu        sync.Mutex
}

// NewONNXEmbedder loads the model at cfg.ModelPath. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	cfg = cfg.withDefaults()
	if cfg.Dimensions <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("dimensions and sample rate must be positive")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	frameSize := int(cfg.FrameSeconds * float64(cfg.SampleRate))
	hopSize := int(cfg.HopSeconds * float64(cfg.SampleRate))

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(frameSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dimensions)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:   session,
		cfg:       cfg,
		frameSize: frameSize,
		hopSize:   hopSize,
		input:     input,
		output:    output,
	}, nil
}

// Embed returns the mean of the model's per-window embeddings for the clip.
func (e *ONNXEmbedder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if sampleRate != e.cfg.SampleRate {
		return nil, fmt.Errorf("%w: model expects %d Hz, got %d Hz", models.ErrEmbeddingFailed, e.cfg.SampleRate, sampleRate)
	}
	windows := Frames(samples, e.frameSize, e.hopSize)
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: empty clip", models.ErrEmbeddingFailed)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	perWindow := make([][]float32, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailed, err)
		}
		copy(e.input.GetData(), w)
		if err := e.session.Run(); err != nil {
			return nil, fmt.Errorf("%w: inference failed: %v", models.ErrEmbeddingFailed, err)
		}
		vec := make([]float32, e.cfg.Dimensions)
		copy(vec, e.output.GetData())
		perWindow = append(perWindow, vec)
	}

	embedding := MeanPool(perWindow)
	if err := CheckOutput(embedding, e.cfg.Dimensions); err != nil {
		return nil, err
	}
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		_ = e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}
