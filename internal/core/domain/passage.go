package domain

// Well-known passage attribute names.
const (
	AttrDishName     = "dish_name"
	AttrImageLink    = "image_link"
	AttrDepartmentID = "department_id"
)

// Passage is one retrievable unit of the knowledge base. It is owned by the
// external index and treated as immutable.
type Passage struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Embedding  []float32         `json:"-"`
}

func (p Passage) Attribute(name string) string {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes[name]
}

// DisplayName falls back to the passage ID when no dish name is stored.
func (p Passage) DisplayName() string {
	if name := p.Attribute(AttrDishName); name != "" {
		return name
	}
	return p.ID
}

// ScoredCandidate carries a retriever-local score. Scores from different
// retrievers are not comparable.
type ScoredCandidate struct {
	Passage Passage
	Score   float64
}

// Query is one search variant. Embedding is optional; dense retrievers
// compute it when absent.
type Query struct {
	Text      string
	Embedding []float32
}

// RankedList is the output of one retriever for one query variant, ordered by
// descending local score.
type RankedList struct {
	Query      string
	Retriever  string
	Candidates []ScoredCandidate
}

func (l RankedList) Len() int {
	return len(l.Candidates)
}

// FusedResult is one distinct passage after rank fusion.
type FusedResult struct {
	Passage    Passage
	Score      float64
	LocalScore float64
	Hits       int
}

// RerankedResult adds the normalized second-stage score.
type RerankedResult struct {
	FusedResult
	RawScore float64
	Score    float64
	Accepted bool
}
