package lexical

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

const (
	defaultK1   = 1.5
	defaultB    = 0.75
	defaultTopK = 10
)

type posting struct {
	doc int
	tf  int
}

type snapshot struct {
	passages []domain.Passage
	postings map[string][]posting
	docLen   []int
	avgLen   float64
}

// Index is a BM25 inverted index over an in-memory corpus snapshot. Searches
// read an immutable snapshot, so Refresh can swap it while queries run.
type Index struct {
	current atomic.Pointer[snapshot]
	k1      float64
	b       float64
	topK    int
}

func NewIndex(topK int) *Index {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Index{k1: defaultK1, b: defaultB, topK: topK}
}

// Build replaces the snapshot. Passages keep their input order, and a
// repeated ID keeps its first occurrence.
func (ix *Index) Build(passages []domain.Passage) {
	snap := &snapshot{postings: make(map[string][]posting)}
	seen := make(map[string]struct{}, len(passages))
	var total int
	for _, p := range passages {
		if _, dup := seen[p.ID]; dup || p.ID == "" {
			continue
		}
		seen[p.ID] = struct{}{}

		doc := len(snap.passages)
		tokens := Tokenize(p.Text)
		counts := make(map[string]int, len(tokens))
		order := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
		for _, tok := range order {
			snap.postings[tok] = append(snap.postings[tok], posting{doc: doc, tf: counts[tok]})
		}
		snap.passages = append(snap.passages, p)
		snap.docLen = append(snap.docLen, len(tokens))
		total += len(tokens)
	}
	if len(snap.passages) > 0 {
		snap.avgLen = float64(total) / float64(len(snap.passages))
	}
	ix.current.Store(snap)
}

// Refresh rebuilds the snapshot from the vector index.
func (ix *Index) Refresh(ctx context.Context, source ports.VectorIndex, limit int) (int, error) {
	passages, err := source.GetAll(ctx, limit)
	if err != nil {
		return 0, domain.WrapError(domain.ErrUpstream, "load lexical snapshot", err)
	}
	ix.Build(passages)
	return ix.Size(), nil
}

func (ix *Index) Size() int {
	snap := ix.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.passages)
}

func (ix *Index) Name() string {
	return "lexical"
}

// Retrieve scores the snapshot with BM25. Ties keep index order.
func (ix *Index) Retrieve(ctx context.Context, query domain.Query) (domain.RankedList, error) {
	if err := ctx.Err(); err != nil {
		return domain.RankedList{}, err
	}
	snap := ix.current.Load()
	if snap == nil || len(snap.passages) == 0 {
		return domain.RankedList{}, domain.WrapError(domain.ErrEmptyIndex, "lexical search", errNoSnapshot)
	}

	scores := make([]float64, len(snap.passages))
	n := float64(len(snap.passages))
	for _, term := range Tokenize(query.Text) {
		postings := snap.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range postings {
			tf := float64(p.tf)
			norm := ix.k1 * (1 - ix.b + ix.b*float64(snap.docLen[p.doc])/snap.avgLen)
			scores[p.doc] += idf * tf * (ix.k1 + 1) / (tf + norm)
		}
	}

	hits := make([]int, 0)
	for doc, s := range scores {
		if s > 0 {
			hits = append(hits, doc)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return scores[hits[i]] > scores[hits[j]]
	})
	if len(hits) > ix.topK {
		hits = hits[:ix.topK]
	}

	list := domain.RankedList{Query: query.Text, Retriever: ix.Name(), Candidates: make([]domain.ScoredCandidate, 0, len(hits))}
	for _, doc := range hits {
		list.Candidates = append(list.Candidates, domain.ScoredCandidate{Passage: snap.passages[doc], Score: scores[doc]})
	}
	return list, nil
}
