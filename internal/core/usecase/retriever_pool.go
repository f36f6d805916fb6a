package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

const defaultRetrieverTimeout = 3 * time.Second

// PoolResult holds one ranked list per (query, retriever) pair, queries in
// input order and retrievers in registration order.
type PoolResult struct {
	Lists    []domain.RankedList
	Calls    int
	Failures int
}

// AllFailed reports whether no retriever call succeeded.
func (r PoolResult) AllFailed() bool {
	return r.Calls > 0 && r.Failures == r.Calls
}

type RetrieverPool struct {
	retrievers  []ports.Retriever
	timeout     time.Duration
	maxParallel int
	logger      *slog.Logger
}

func NewRetrieverPool(retrievers []ports.Retriever, timeout time.Duration, maxParallel int, logger *slog.Logger) *RetrieverPool {
	if timeout <= 0 {
		timeout = defaultRetrieverTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieverPool{
		retrievers:  retrievers,
		timeout:     timeout,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

// Run executes every query against every retriever concurrently and waits
// for all of them. A retriever that errors or exceeds its deadline
// contributes an empty list.
func (p *RetrieverPool) Run(ctx context.Context, queries []domain.Query) (PoolResult, error) {
	if len(p.retrievers) == 0 {
		return PoolResult{}, domain.WrapError(domain.ErrInvalidInput, "run retriever pool", errNoRetrievers)
	}

	total := len(queries) * len(p.retrievers)
	lists := make([]domain.RankedList, total)
	failed := make([]bool, total)

	var g errgroup.Group
	if p.maxParallel > 0 {
		g.SetLimit(p.maxParallel)
	}
	for qi, query := range queries {
		for ri, retriever := range p.retrievers {
			slot := qi*len(p.retrievers) + ri
			g.Go(func() error {
				list, ok := p.retrieveOne(ctx, retriever, query)
				lists[slot] = list
				failed[slot] = !ok
				return nil
			})
		}
	}
	_ = g.Wait()

	result := PoolResult{Lists: lists, Calls: total}
	for _, f := range failed {
		if f {
			result.Failures++
		}
	}
	return result, nil
}

func (p *RetrieverPool) retrieveOne(ctx context.Context, retriever ports.Retriever, query domain.Query) (domain.RankedList, bool) {
	empty := domain.RankedList{Query: query.Text, Retriever: retriever.Name()}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	list, err := retriever.Retrieve(callCtx, query)
	if err != nil {
		p.logger.Warn("retriever_failed",
			"retriever", retriever.Name(),
			"query", truncateForLog(query.Text, 120),
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err.Error(),
		)
		return empty, false
	}
	list.Query = query.Text
	list.Retriever = retriever.Name()
	return list, true
}
