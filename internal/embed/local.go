package embed

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// maxSequenceLength bounds the token window fed to the ONNX session; longer
// fragments are truncated, matching the MiniLM family's training length.
const maxSequenceLength = 256

var ortInit sync.Once
var ortInitErr error

func ensureEnvironment(sharedLibPath string) error {
	ortInit.Do(func() {
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// LocalConfig describes where to find a local ONNX transformer and its
// matching tokenizer.
type LocalConfig struct {
	ModelPath      string // path to model.onnx
	TokenizerPath  string // path to tokenizer.json
	SharedLibPath  string // optional, overrides the platform-default onnxruntime shared library
	Dimensions     int    // output vector size, default 384 (all-MiniLM-L6-v2)
}

// LocalEmbedder runs a sentence-transformer ONNX model loaded at startup:
// tokenize with a WordPiece/BPE tokenizer, run the encoder, mean-pool the
// last hidden state over non-padding tokens, L2-normalize.
type LocalEmbedder struct {
	mu      sync.Mutex
	tok     *tokenizer.Tokenizer
	session *ort.AdvancedSession
	input   *ort.Tensor[int64]
	mask    *ort.Tensor[int64]
	output  *ort.Tensor[float32]
	dims    int
}

// NewLocalEmbedder loads the tokenizer and opens an ONNX inference session
// for cfg.ModelPath. The returned Embedder holds its session open until
// Close is called.
func NewLocalEmbedder(cfg LocalConfig) (*LocalEmbedder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("local embedder requires both a model path and a tokenizer path")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}

	if err := ensureEnvironment(cfg.SharedLibPath); err != nil {
		return nil, fmt.Errorf("initializing onnx runtime: %w", err)
	}

	tok, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %q: %w", cfg.TokenizerPath, err)
	}

	inputShape := ort.NewShape(1, maxSequenceLength)
	inputTensor, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocating input tensor: %w", err)
	}
	maskTensor, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("allocating attention mask tensor: %w", err)
	}
	outputShape := ort.NewShape(1, maxSequenceLength, int64(cfg.Dimensions))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		maskTensor.Destroy()
		return nil, fmt.Errorf("allocating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{inputTensor, maskTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		maskTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("opening onnx session %q: %w", cfg.ModelPath, err)
	}

	return &LocalEmbedder{
		tok:     tok,
		session: session,
		input:   inputTensor,
		mask:    maskTensor,
		output:  outputTensor,
		dims:    cfg.Dimensions,
	}, nil
}

// Close releases the ONNX session and its tensors.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Destroy()
	e.input.Destroy()
	e.mask.Destroy()
	e.output.Destroy()
	return nil
}

// Embed tokenizes text, runs it through the ONNX session, and returns a
// mean-pooled, L2-normalized embedding vector.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	encoding, err := e.tok.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenizing text: %w", err)
	}

	ids := encoding.Ids
	if len(ids) > maxSequenceLength {
		ids = ids[:maxSequenceLength]
	}

	inputData := e.input.GetData()
	maskData := e.mask.GetData()
	for i := range inputData {
		if i < len(ids) {
			inputData[i] = int64(ids[i])
			maskData[i] = 1
		} else {
			inputData[i] = 0
			maskData[i] = 0
		}
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("running onnx session: %w", err)
	}

	hidden := e.output.GetData()
	vec := meanPool(hidden, maskData, len(ids), e.dims)
	l2Normalize(vec)
	return vec, nil
}

// Dimensions returns the configured output vector size.
func (e *LocalEmbedder) Dimensions() int {
	return e.dims
}

// meanPool averages the per-token hidden vectors over the first validLen
// non-padding positions.
func meanPool(hidden []float32, mask []int64, validLen, dims int) []float32 {
	out := make([]float32, dims)
	if validLen == 0 {
		return out
	}
	var count float32
	for t := 0; t < validLen; t++ {
		if mask[t] == 0 {
			continue
		}
		base := t * dims
		for d := 0; d < dims; d++ {
			out[d] += hidden[base+d]
		}
		count++
	}
	if count == 0 {
		return out
	}
	for d := range out {
		out[d] /= count
	}
	return out
}

func l2Normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
