package embed

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// Options configure the local embedding model.
type Options struct {
	Model     fastembed.EmbeddingModel // zero value picks bge-small-en-v1.5
	CacheDir  string
	MaxLength int
	BatchSize int
}

// FastEmbedder runs a local ONNX embedding model in-process.
type FastEmbedder struct {
	model *fastembed.FlagEmbedding
	batch int

	mu  sync.Mutex
	dim int
}

// NewFastEmbedder loads the model, downloading it into CacheDir on first use.
func NewFastEmbedder(opt *Options) (*FastEmbedder, error) {
	var init *fastembed.InitOptions
	if opt != nil {
		init = &fastembed.InitOptions{
			Model:     opt.Model,
			CacheDir:  opt.CacheDir,
			MaxLength: opt.MaxLength,
		}
	}
	model, err := fastembed.NewFlagEmbedding(init)
	if err != nil {
		return nil, fmt.Errorf("embed: load model: %w", err)
	}
	batch := 64
	if opt != nil && opt.BatchSize > 0 {
		batch = opt.BatchSize
	}
	if max := 4 * runtime.GOMAXPROCS(0); batch > max {
		batch = max
	}
	return &FastEmbedder{model: model, batch: batch}, nil
}

var _ Embedder = (*FastEmbedder)(nil)

func (e *FastEmbedder) Embed(_ context.Context, query string) ([]float32, error) {
	v, err := e.model.QueryEmbed(query)
	if err != nil {
		return nil, err
	}
	e.noteDim(len(v))
	return v, nil
}

func (e *FastEmbedder) EmbedPassages(_ context.Context, passages []string) ([][]float32, error) {
	inputs := make([]string, len(passages))
	for i, p := range passages {
		if len(p) >= 8 && p[:8] == "passage:" {
			inputs[i] = p
		} else {
			inputs[i] = "passage: " + p
		}
	}
	out, err := e.model.PassageEmbed(inputs, e.batch)
	if err != nil {
		return nil, fmt.Errorf("embed: passages: %w", err)
	}
	if len(out) > 0 {
		e.noteDim(len(out[0]))
	}
	return out, nil
}

// Dim reports the model's output dimension, learned from the first embedding
// it produces. Zero until then; the models fastembed ships vary (384 for the
// default bge-small-en-v1.5, 768 for the base variants).
func (e *FastEmbedder) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

func (e *FastEmbedder) noteDim(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = n
	}
}

func (e *FastEmbedder) Close() error {
	if e.model != nil {
		e.model.Destroy()
	}
	return nil
}
