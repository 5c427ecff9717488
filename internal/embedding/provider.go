// Package embedding turns datasheet text into fixed-dimension vectors.
//
// The actual text encoder (OpenAI by default) is treated as an external
// capability behind the Encoder interface. Provider adds what callers
// need on top of it: thread-safe lazy initialization, input validation,
// and batching.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute
// rate limits. Encoders accept larger batches, but smaller ones reduce
// per-request token pressure.
const DefaultBatchSize = 500

// Encoder maps a batch of texts to fixed-width float vectors. Encoders
// must return one vector per input text, in input order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Provider wraps an Encoder with lazy, thread-safe initialization and
// batched embedding calls. Constructing the encoder may be expensive
// (model load, credential checks), so it is deferred until the first
// embedding call; concurrent first calls initialize exactly once.
type Provider struct {
	encoder   func() (Encoder, error)
	batchSize int
	logger    *slog.Logger
}

// NewProvider creates a Provider that obtains its encoder from open on
// first use. If batchSize is 0, DefaultBatchSize is used.
func NewProvider(open func() (Encoder, error), batchSize int, logger *slog.Logger) *Provider {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		batchSize: batchSize,
		logger:    logger,
	}
	p.encoder = sync.OnceValues(func() (Encoder, error) {
		logger.Info("Initializing text encoder")
		enc, err := open()
		if err != nil {
			logger.Error("Text encoder initialization failed", "error", err)
			return nil, err
		}
		logger.Info("Text encoder ready", "dimension", enc.Dimension())
		return enc, nil
	})
	return p
}

// EmbedOne generates the embedding for a single text.
// Returns ErrEmptyInput if the trimmed text is empty.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	enc, err := p.get()
	if err != nil {
		return nil, err
	}

	vectors, err := enc.Encode(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: encoder returned %d vectors for 1 text", ErrEncoderUnavailable, len(vectors))
	}
	return vectors[0], nil
}

// EmbedMany generates embeddings for a batch of texts. The result is
// aligned to the input: result[i] is the embedding of texts[i], or nil
// if texts[i] was empty or whitespace-only. Callers can therefore keep
// positional correspondence even when some entries are skipped.
// Returns ErrAllInputsEmpty if every entry is blank.
func (p *Provider) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Collect non-blank entries and remember their original positions.
	positions := make([]int, 0, len(texts))
	valid := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			positions = append(positions, i)
			valid = append(valid, text)
		}
	}
	if len(valid) == 0 {
		return nil, ErrAllInputsEmpty
	}

	enc, err := p.get()
	if err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	for i := 0; i < len(valid); i += p.batchSize {
		end := min(i+p.batchSize, len(valid))
		batch := valid[i:end]

		vectors, err := enc.Encode(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrEncoderUnavailable, i, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: encoder returned %d vectors for %d texts", ErrEncoderUnavailable, len(vectors), len(batch))
		}
		for j, vec := range vectors {
			results[positions[i+j]] = vec
		}
	}

	return results, nil
}

// Dimension returns the encoder's fixed output width, initializing the
// encoder if needed. The value is stable for the provider's lifetime.
func (p *Provider) Dimension() (int, error) {
	enc, err := p.get()
	if err != nil {
		return 0, err
	}
	return enc.Dimension(), nil
}

// get returns the ready encoder, performing one-time initialization on
// the first call. All callers observe the same encoder (or the same
// initialization error).
func (p *Provider) get() (Encoder, error) {
	enc, err := p.encoder()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}
	return enc, nil
}
