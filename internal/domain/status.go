package domain

// Status is the lifecycle state of a filing in the processing pipeline.
type Status string

const (
	// StatusIngested means the raw document was fetched and recorded.
	StatusIngested Status = "INGESTED"
	// StatusAnalyzed means structured extraction succeeded.
	StatusAnalyzed Status = "ANALYZED"
	// StatusAnalyzedNotIndexed means extraction succeeded but indexing has not completed.
	StatusAnalyzedNotIndexed Status = "ANALYZED_NOT_INDEXED"
	// StatusIndexed is the successful terminal state.
	StatusIndexed Status = "INDEXED"
	// StatusDeadLetter is the failed terminal state, holding diagnostic context.
	StatusDeadLetter Status = "DEAD_LETTER"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusIngested, StatusAnalyzed, StatusAnalyzedNotIndexed, StatusIndexed, StatusDeadLetter:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no further forward transition.
// DEAD_LETTER is terminal for the pipeline; only an explicit replay leaves it.
func (s Status) IsTerminal() bool {
	return s == StatusIndexed || s == StatusDeadLetter
}

// transitions is the closed transition table. Replay (DEAD_LETTER -> INGESTED)
// is intentionally absent: it goes through Store.Replay, not Transition.
var transitions = map[Status][]Status{
	StatusIngested:           {StatusAnalyzed, StatusDeadLetter},
	StatusAnalyzed:           {StatusAnalyzedNotIndexed, StatusDeadLetter},
	StatusAnalyzedNotIndexed: {StatusIndexed, StatusDeadLetter},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
