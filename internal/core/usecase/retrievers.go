package usecase

import (
	"context"
	"sort"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

const defaultDenseTopK = 10

// DenseRetriever searches the vector index by query embedding.
type DenseRetriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	topK     int
}

func NewDenseRetriever(embedder ports.Embedder, index ports.VectorIndex, topK int) *DenseRetriever {
	if topK <= 0 {
		topK = defaultDenseTopK
	}
	return &DenseRetriever{embedder: embedder, index: index, topK: topK}
}

func (r *DenseRetriever) Name() string {
	return "dense"
}

func (r *DenseRetriever) Retrieve(ctx context.Context, query domain.Query) (domain.RankedList, error) {
	vector := query.Embedding
	if len(vector) == 0 {
		var err error
		vector, err = r.embedder.Embed(ctx, query.Text)
		if err != nil {
			return domain.RankedList{}, domain.WrapError(domain.ErrUpstream, "embed query", err)
		}
	}

	candidates, err := r.index.Search(ctx, vector, r.topK)
	if err != nil {
		return domain.RankedList{}, domain.WrapError(domain.ErrUpstream, "search vector index", err)
	}

	// The index already orders by similarity; the stable sort only guards
	// against backends that do not.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
	}
	return domain.RankedList{Query: query.Text, Retriever: r.Name(), Candidates: candidates}, nil
}
