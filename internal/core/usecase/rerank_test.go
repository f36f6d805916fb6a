package usecase

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

func fusedFor(ids ...string) []domain.FusedResult {
	out := make([]domain.FusedResult, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.FusedResult{
			Passage: passage(id, "text "+id, nil),
			Score:   1.0 / float64(60+i),
		})
	}
	return out
}

func TestRerankKeepsOnlyConfidentCandidates(t *testing.T) {
	encoder := &fakeCrossEncoder{scores: func(_ string, texts []string) ([]float64, error) {
		return []float64{-3, 9, -2, -3, -2.5}, nil
	}}
	r := NewReranker(encoder, 0.8, 5, nil)

	out := r.Rerank(context.Background(), "pho bo", fusedFor("a", "b", "c", "d", "e"))

	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Passage.ID)
	assert.Equal(t, 9.0, out[0].RawScore)
	assert.True(t, out[0].Accepted)
}

func TestRerankThresholdPropertyHoldsForRandomBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := rng.Intn(20)
		raw := make([]float64, n)
		for i := range raw {
			raw[i] = rng.NormFloat64() * 5
		}
		encoder := &fakeCrossEncoder{scores: func(string, []string) ([]float64, error) { return raw, nil }}
		r := NewReranker(encoder, 0.8, 5, nil)

		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		out := r.Rerank(context.Background(), "q", fusedFor(ids...))

		require.NotNil(t, out)
		assert.LessOrEqual(t, len(out), 5)
		for i, item := range out {
			assert.Greater(t, item.Score, 0.0)
			assert.Less(t, item.Score, 1.0)
			assert.GreaterOrEqual(t, item.Score, 0.8)
			if i > 0 {
				assert.GreaterOrEqual(t, out[i-1].Score, item.Score)
			}
		}
	}
}

func TestRerankEmptyBatchIsNotAnError(t *testing.T) {
	called := false
	encoder := &fakeCrossEncoder{scores: func(string, []string) ([]float64, error) {
		called = true
		return nil, nil
	}}
	out := NewReranker(encoder, 0.8, 5, nil).Rerank(context.Background(), "q", nil)

	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.False(t, called)
}

func TestRerankZeroVarianceBatchFallsBelowThreshold(t *testing.T) {
	encoder := &fakeCrossEncoder{scores: func(_ string, texts []string) ([]float64, error) {
		out := make([]float64, len(texts))
		for i := range out {
			out[i] = 4.2
		}
		return out, nil
	}}

	out := NewReranker(encoder, 0.8, 5, nil).Rerank(context.Background(), "q", fusedFor("a", "b", "c"))
	assert.Empty(t, out)
}

func TestRerankDegradesToFusedScoresOnEncoderFailure(t *testing.T) {
	encoder := &fakeCrossEncoder{scores: func(string, []string) ([]float64, error) {
		return nil, errors.New("connection refused")
	}}
	fused := fusedFor("a", "b", "c", "d", "e", "f", "g", "h")
	fused[0].Score = 1

	out := NewReranker(encoder, 0.8, 5, nil).Rerank(context.Background(), "q", fused)

	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Passage.ID)
}

func TestRerankRejectsMismatchedScoreCount(t *testing.T) {
	encoder := &fakeCrossEncoder{scores: func(string, []string) ([]float64, error) {
		return []float64{1}, nil
	}}
	fused := fusedFor("a", "b", "c", "d", "e", "f", "g", "h")
	fused[2].Score = 1

	out := NewReranker(encoder, 0.8, 5, nil).Rerank(context.Background(), "q", fused)

	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].Passage.ID)
}

func TestRerankTruncatesToFinalCount(t *testing.T) {
	raw := []float64{10, 10, 10, -10, -10, -10, -10, -10, -10, -10, -10, -10}
	encoder := &fakeCrossEncoder{scores: func(string, []string) ([]float64, error) { return raw, nil }}

	out := NewReranker(encoder, 0.8, 2, nil).Rerank(context.Background(), "q",
		fusedFor("a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"))

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Passage.ID)
	assert.Equal(t, "b", out[1].Passage.ID)
}

func TestNormalizeScoresMapsIntoUnitInterval(t *testing.T) {
	out := NormalizeScores([]float64{1, 2, 3})

	require.Len(t, out, 3)
	assert.InDelta(t, 0.5, out[1], 1e-9)
	assert.Less(t, out[0], out[1])
	assert.Less(t, out[1], out[2])
	assert.InDelta(t, 1.0, out[0]+out[2], 1e-9)
}
