package lexical

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

func corpus() []domain.Passage {
	return []domain.Passage{
		{ID: "pho-bo", Text: "Món: Phở bò. Mô tả: nước dùng xương bò, bánh phở. Loại: món nước"},
		{ID: "bun-bo", Text: "Món: Bún bò Huế. Mô tả: bún, thịt bò, sả. Loại: món nước"},
		{ID: "dau-hu", Text: "Món: Đậu hũ chiên. Thành phần: đậu hũ, dầu ăn"},
		{ID: "suon", Text: "Món: Sườn non nướng. Thành phần: sườn non, mật ong"},
	}
}

func ids(list domain.RankedList) []string {
	out := make([]string, 0, len(list.Candidates))
	for _, c := range list.Candidates {
		out = append(out, c.Passage.ID)
	}
	return out
}

func TestTokenizeNormalizesAndDropsStopwords(t *testing.T) {
	decomposed := norm.NFD.String("Phở bò có bao nhiêu calo?")
	tokens := Tokenize(decomposed)

	assert.Equal(t, []string{"phở", "bò", "calo", "phở_bò", "bò_calo"}, tokens)
}

func TestRetrieveRanksCompoundMatchFirst(t *testing.T) {
	ix := NewIndex(10)
	ix.Build(corpus())

	list, err := ix.Retrieve(context.Background(), domain.Query{Text: "phở bò bao nhiêu calo"})
	require.NoError(t, err)
	require.NotEmpty(t, list.Candidates)
	assert.Equal(t, "pho-bo", list.Candidates[0].Passage.ID)
	assert.Equal(t, "lexical", list.Retriever)
	for i := 1; i < len(list.Candidates); i++ {
		assert.GreaterOrEqual(t, list.Candidates[i-1].Score, list.Candidates[i].Score)
	}
	assert.NotContains(t, ids(list), "dau-hu")
}

func TestRetrieveBreaksTiesByIndexOrder(t *testing.T) {
	ix := NewIndex(10)
	ix.Build([]domain.Passage{
		{ID: "second", Text: "đậu hũ"},
		{ID: "first", Text: "đậu hũ"},
		{ID: "second", Text: "duplicate id is ignored"},
	})

	list, err := ix.Retrieve(context.Background(), domain.Query{Text: "đậu hũ"})
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, ids(list))
	assert.Equal(t, 2, ix.Size())
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	ix := NewIndex(1)
	ix.Build(corpus())

	list, err := ix.Retrieve(context.Background(), domain.Query{Text: "bò"})
	require.NoError(t, err)
	assert.Len(t, list.Candidates, 1)
}

func TestRetrieveFailsOnEmptySnapshot(t *testing.T) {
	ix := NewIndex(5)
	_, err := ix.Retrieve(context.Background(), domain.Query{Text: "phở"})
	assert.True(t, domain.IsKind(err, domain.ErrEmptyIndex))

	ix.Build(nil)
	_, err = ix.Retrieve(context.Background(), domain.Query{Text: "phở"})
	assert.True(t, domain.IsKind(err, domain.ErrEmptyIndex))
}

func TestRetrieveWithoutMatchesReturnsEmptyList(t *testing.T) {
	ix := NewIndex(5)
	ix.Build(corpus())

	list, err := ix.Retrieve(context.Background(), domain.Query{Text: "pizza"})
	require.NoError(t, err)
	assert.Empty(t, list.Candidates)
}

type stubSource struct {
	passages []domain.Passage
	err      error
	limit    int
}

func (s *stubSource) Search(context.Context, []float32, int) ([]domain.ScoredCandidate, error) {
	return nil, nil
}

func (s *stubSource) GetAll(_ context.Context, limit int) ([]domain.Passage, error) {
	s.limit = limit
	return s.passages, s.err
}

func TestRefreshLoadsFromSource(t *testing.T) {
	ix := NewIndex(5)
	src := &stubSource{passages: corpus()}

	n, err := ix.Refresh(context.Background(), src, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1000, src.limit)

	_, err = ix.Refresh(context.Background(), &stubSource{err: errors.New("qdrant down")}, 1000)
	assert.True(t, domain.IsKind(err, domain.ErrUpstream))
	assert.Equal(t, 4, ix.Size())
}
