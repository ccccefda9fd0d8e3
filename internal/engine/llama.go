//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	llama "github.com/go-skynet/go-llama.cpp"

	"llmedged/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaEngine loads GGUF text and embedding models in-process via
// go-llama.cpp. Diffusion and transcription families are not covered by this
// adapter and report ErrUnavailable.
type llamaEngine struct{}

// NewNativeEngine returns the in-process llama.cpp engine.
func NewNativeEngine() Engine { return &llamaEngine{} }

func (e *llamaEngine) Load(ctx context.Context, spec LoadSpec) (Handle, error) {
	if spec.Family != types.FamilyText && spec.Family != types.FamilyEmbedding {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(spec.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []llama.ModelOption{
		llama.SetContext(spec.ContextSize),
		llama.SetMMap(spec.UseMmap),
	}
	if spec.UseMlock {
		opts = append(opts, llama.SetMlock(true))
	}
	if spec.UseGPU {
		opts = append(opts, llama.SetGPULayers(99))
	}
	if spec.Family == types.FamilyEmbedding {
		opts = append(opts, llama.EnableEmbeddings)
	}
	m, err := llama.New(spec.Path, opts...)
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m, family: spec.Family, threads: spec.Threads}, nil
}

// llamaHandle owns one loaded llama model.
type llamaHandle struct {
	model     *llama.LLama
	family    types.Family
	threads   int
	cancelled atomic.Bool
	closed    atomic.Bool
}

func (h *llamaHandle) Family() types.Family { return h.family }

func (h *llamaHandle) Cancel() { h.cancelled.Store(true) }

func (h *llamaHandle) Generate(ctx context.Context, req Request, progress ProgressSink) (Result, error) {
	if h.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}
	h.cancelled.Store(false)

	if h.family == types.FamilyEmbedding {
		emb, err := h.model.Embeddings(req.Prompt)
		if err != nil {
			return Result{}, err
		}
		return Result{Embedding: emb, Units: 1}, nil
	}

	tokens := 0
	h.model.SetTokenCallback(func(tok string) bool {
		if h.cancelled.Load() || ctx.Err() != nil {
			return false
		}
		tokens++
		if progress != nil {
			progress(tokens, req.MaxTokens)
		}
		return true
	})
	po := []llama.PredictOption{
		llama.SetThreads(h.threads),
		llama.SetTokens(req.MaxTokens),
		llama.SetTemperature(float32(req.Temperature)),
		llama.SetTopP(float32(req.TopP)),
	}
	if req.Seed != 0 {
		po = append(po, llama.SetSeed(int(req.Seed)))
	}
	text, err := h.model.Predict(req.Prompt, po...)
	if h.cancelled.Load() {
		return Result{}, ErrCancelled
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	return Result{Text: text, Units: tokens}, nil
}

func (h *llamaHandle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}
