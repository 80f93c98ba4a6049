package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	Vector    []float32
	K         int
	// TickerFilter, when non-empty, pre-filters candidates by the ticker TAG
	// field before KNN, so excluded items never distort ranks.
	TickerFilter string
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Score is a similarity in [0,1]
// derived from the vector distance; higher is more similar.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
