package usecase

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

const (
	defaultRerankThreshold  = 0.8
	defaultRerankFinalCount = 5
	normalizeEpsilon        = 1e-8
)

type Reranker struct {
	encoder    ports.CrossEncoder
	threshold  float64
	finalCount int
	logger     *slog.Logger
}

func NewReranker(encoder ports.CrossEncoder, threshold float64, finalCount int, logger *slog.Logger) *Reranker {
	if threshold <= 0 || threshold >= 1 {
		threshold = defaultRerankThreshold
	}
	if finalCount <= 0 {
		finalCount = defaultRerankFinalCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		encoder:    encoder,
		threshold:  threshold,
		finalCount: finalCount,
		logger:     logger,
	}
}

// Rerank scores the shortlist with the cross-encoder and keeps the accepted
// results, best first. An empty return is a valid "no confident evidence"
// outcome. When the cross-encoder fails the fused scores are normalized in
// its place.
func (r *Reranker) Rerank(ctx context.Context, query string, fused []domain.FusedResult) []domain.RerankedResult {
	if len(fused) == 0 {
		return []domain.RerankedResult{}
	}

	raw, err := r.score(ctx, query, fused)
	if err != nil {
		r.logger.Warn("rerank_degraded", "error", err.Error(), "candidates", len(fused))
		raw = make([]float64, len(fused))
		for i, item := range fused {
			raw[i] = item.Score
		}
	}

	return r.accept(fused, raw)
}

func (r *Reranker) score(ctx context.Context, query string, fused []domain.FusedResult) ([]float64, error) {
	if r.encoder == nil {
		return nil, domain.WrapError(domain.ErrUpstream, "rerank", errNoCrossEncoder)
	}
	texts := make([]string, len(fused))
	for i, item := range fused {
		texts[i] = item.Passage.Text
	}
	scores, err := r.encoder.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(fused) {
		return nil, domain.WrapError(domain.ErrUpstream, "rerank", errScoreCountMismatch)
	}
	return scores, nil
}

func (r *Reranker) accept(fused []domain.FusedResult, raw []float64) []domain.RerankedResult {
	normalized := NormalizeScores(raw)
	out := make([]domain.RerankedResult, 0, len(fused))
	for i, item := range fused {
		if normalized[i] < r.threshold {
			continue
		}
		out = append(out, domain.RerankedResult{
			FusedResult: item,
			RawScore:    raw[i],
			Score:       normalized[i],
			Accepted:    true,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > r.finalCount {
		out = out[:r.finalCount]
	}
	return out
}

// NormalizeScores z-scores the batch with the population standard deviation
// and squashes each value through the logistic function.
func NormalizeScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(scores)))

	for i, s := range scores {
		out[i] = sigmoid((s - mean) / (std + normalizeEpsilon))
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
