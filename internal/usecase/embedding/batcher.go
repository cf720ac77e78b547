package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docsearch/internal/domain"
	"github.com/kailas-cloud/docsearch/internal/domain/batch"
)

// Batcher defaults.
const (
	DefaultBatchSize   = 32
	DefaultMaxWorkers  = 4
	DefaultMaxAttempts = 3
	DefaultCallTimeout = 60 * time.Second
)

// job is one batch of texts submitted to a worker, start is the
// position of the first text in the original input.
type job struct {
	start int
	texts []string
}

// Batcher groups texts into bounded batches and drives them through the
// embedding provider under a worker pool. The job queue is capped at
// maxWorkers*2 so producers block instead of buffering unboundedly.
type Batcher struct {
	embedder    domain.BatchEmbedder
	batchSize   int
	maxWorkers  int
	maxAttempts int
	callTimeout time.Duration
	backoff     Backoff
	logger      *zap.Logger
}

// BatcherConfig holds tuning knobs for a Batcher. Zero values fall back
// to package defaults.
type BatcherConfig struct {
	BatchSize   int
	MaxWorkers  int
	MaxAttempts int
	CallTimeout time.Duration
	Backoff     Backoff
}

// NewBatcher creates a batcher over the given embedder.
func NewBatcher(embedder domain.BatchEmbedder, cfg BatcherConfig, logger *zap.Logger) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	return &Batcher{
		embedder:    embedder,
		batchSize:   cfg.BatchSize,
		maxWorkers:  cfg.MaxWorkers,
		maxAttempts: cfg.MaxAttempts,
		callTimeout: cfg.CallTimeout,
		backoff:     cfg.Backoff,
		logger:      logger,
	}
}

// EmbedAll embeds every text and returns one result per input, aligned
// positionally. A failed batch marks only its own items; sibling
// batches are unaffected. On context cancellation in-flight batches
// complete, no new batches are dispatched, and undispatched items carry
// the cancellation error.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) []batch.Result {
	results := make([]batch.Result, len(texts))
	if len(texts) == 0 {
		return results
	}

	jobs := make(chan job, b.maxWorkers*2)

	var mu sync.Mutex
	store := func(rs []batch.Result) {
		mu.Lock()
		for _, r := range rs {
			results[r.Index()] = r
		}
		mu.Unlock()
	}

	var g errgroup.Group
	for w := 0; w < b.maxWorkers; w++ {
		g.Go(func() error {
			for j := range jobs {
				store(b.processBatch(ctx, j))
			}
			return nil
		})
	}

	// Producer: stops dispatching once the context is canceled, the
	// remaining items are marked failed with the cancellation cause.
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := ctx.Err(); err != nil {
			rs := make([]batch.Result, 0, len(texts)-start)
			for i := start; i < len(texts); i++ {
				rs = append(rs, batch.NewError(i, err))
			}
			store(rs)
			break
		}

		jobs <- job{start: start, texts: texts[start:end]}
	}
	close(jobs)

	_ = g.Wait()
	return results
}

// processBatch embeds one batch with retry on transient failures.
func (b *Batcher) processBatch(ctx context.Context, j job) []batch.Result {
	// A batch still sitting in the queue when the run is canceled fails
	// immediately, embedOnce would otherwise detach a fresh provider
	// call that outlives the cancellation.
	if err := ctx.Err(); err != nil {
		rs := make([]batch.Result, len(j.texts))
		for i := range j.texts {
			rs[i] = batch.NewError(j.start+i, err)
		}
		return rs
	}

	var lastErr error

	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		if attempt > 0 {
			if !b.sleep(ctx, b.backoff.Jittered(attempt-1)) {
				lastErr = ctx.Err()
				break
			}
		}

		res, err := b.embedOnce(ctx, j.texts)
		if err == nil && len(res.Embeddings) != len(j.texts) {
			err = fmt.Errorf("%w: got %d vectors for %d texts",
				domain.ErrEmbeddingTransient, len(res.Embeddings), len(j.texts))
		}
		if err == nil {
			rs := make([]batch.Result, len(j.texts))
			for i := range j.texts {
				rs[i] = batch.NewVector(j.start+i, res.Embeddings[i])
			}
			return rs
		}

		lastErr = err
		if !domain.IsTransientEmbedding(err) {
			b.logger.Warn("Batch embedding failed permanently",
				zap.Int("batch_start", j.start),
				zap.Int("batch_size", len(j.texts)),
				zap.Error(err),
			)
			break
		}

		b.logger.Warn("Batch embedding failed, will retry",
			zap.Int("batch_start", j.start),
			zap.Int("batch_size", len(j.texts)),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	rs := make([]batch.Result, len(j.texts))
	for i := range j.texts {
		rs[i] = batch.NewError(j.start+i, lastErr)
	}
	return rs
}

// embedOnce performs a single embedding call under the per-call
// timeout. The call is detached from run cancellation so an in-flight
// batch finishes rather than being aborted mid-call.
func (b *Batcher) embedOnce(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.callTimeout)
	defer cancel()
	return b.embedder.BatchEmbed(callCtx, texts)
}

// sleep waits for d or until the context is canceled. Returns false on
// cancellation.
func (b *Batcher) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
