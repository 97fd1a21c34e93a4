//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// ONNXEmbedder runs a pooled sentence-embedding model with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	modelID    string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// inputs follow onnxInputNames and are rewritten on every call.
	inputs []*ort.Tensor[int64]
	output *ort.Tensor[float32]
	mu     sync.Mutex
}

var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

// NewONNXEmbedder loads the model at modelPath. modelID is recorded in every
// index built with this embedder. InitializeEnvironment is called if needed.
func NewONNXEmbedder(modelPath, modelID string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("onnx embedder: model path is required")
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tokenizer := &SimpleTokenizer{}
	seqShape := ort.NewShape(1, int64(maxTokens))

	e := &ONNXEmbedder{modelID: modelID, dimensions: dimensions, maxTokens: maxTokens, tokenizer: tokenizer}
	inputs := make([]ort.ArbitraryTensor, 0, len(onnxInputNames))
	for _, name := range onnxInputNames {
		t, err := ort.NewEmptyTensor[int64](seqShape)
		if err != nil {
			e.destroyTensors()
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		e.inputs = append(e.inputs, t)
		inputs = append(inputs, t)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.output = out

	e.session, err = ort.NewAdvancedSession(modelPath, onnxInputNames, []string{"output"},
		inputs, []ort.ArbitraryTensor{out}, nil)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return e, nil
}

// Embed runs inference for one text. Calls are serialized on the shared tensors.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}
	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	for i, data := range [][]int64{ids, mask, types} {
		copy(e.inputs[i].GetData(), data)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference for %s: %w", e.modelID, err)
	}
	return utils.NormalizedCopy(e.output.GetData()[:e.dimensions]), nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the configured model id.
func (e *ONNXEmbedder) Model() string {
	return e.modelID
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.destroyTensors()
	return err
}

func (e *ONNXEmbedder) destroyTensors() {
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
}
