package result

// Hit is a single engine result: a passage id and its relevance score.
type Hit struct {
	ID    int64
	Score float64
}

// Result is a search hit joined with its display text.
type Result struct {
	id    int64
	text  string
	score float64
}

// New creates a search result.
func New(id int64, text string, score float64) Result {
	return Result{id: id, text: text, score: score}
}

// ID returns the passage identifier.
func (r *Result) ID() int64 { return r.id }

// Text returns the passage text.
func (r *Result) Text() string { return r.text }

// Score returns the engine-defined relevance score. Higher is more relevant.
func (r *Result) Score() float64 { return r.score }
