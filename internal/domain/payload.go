package domain

import "fmt"

// Metadata keys attached to raw documents.
const (
	MetaExhibitMissing = "exhibit_missing"
	MetaFilingDate     = "filing_date"
	MetaFilingType     = "filing_type"
)

// RawDocument travels from the ingestion stage to the extraction stage.
type RawDocument struct {
	Ticker      string            `json:"ticker"`
	SourceKey   string            `json:"source_key"`
	DocumentURL string            `json:"document_url"`
	FullText    string            `json:"full_text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate rejects the payload at the stage boundary when required fields
// are missing, rather than failing deep inside extraction.
func (d *RawDocument) Validate() error {
	if d.SourceKey == "" {
		return fmt.Errorf("%w: raw document missing source key", ErrInvalidPayload)
	}
	if d.Ticker == "" {
		return fmt.Errorf("%w: raw document missing ticker", ErrInvalidPayload)
	}
	if d.FullText == "" {
		return fmt.Errorf("%w: raw document has no text", ErrInvalidPayload)
	}
	return nil
}

// ExhibitMissing reports whether ingestion failed to locate the named
// attachment for a thin document. Downstream confidence is discounted.
func (d *RawDocument) ExhibitMissing() bool {
	return d.Metadata[MetaExhibitMissing] == "true"
}

// KeyMetric is one extracted financial metric.
type KeyMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	// Ambiguous marks values whose magnitude could not be resolved
	// deterministically. Flagged, never guessed.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Guidance is one forward-looking statement tied to a metric.
type Guidance struct {
	Metric    string `json:"metric"`
	Statement string `json:"statement"`
}

// Section pairs a narrative section name with its ordered sentences.
// A slice of sections keeps the extraction order stable end to end.
type Section struct {
	Name      string   `json:"name"`
	Sentences []string `json:"sentences"`
}

// DraftMetric is one metric as the model reported it, value still a string.
type DraftMetric struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// ExtractionDraft is the model's raw structured output before numeric
// parsing and alias normalization turn it into an Analysis.
type ExtractionDraft struct {
	KeyMetrics       []DraftMetric `json:"key_metrics"`
	NarrativeSummary []Section     `json:"narrative_summary,omitempty"`
	ForwardGuidance  []Guidance    `json:"forward_guidance,omitempty"`
}

// Analysis travels from the extraction stage to the indexing stage and is
// persisted as the filing's terminal payload.
type Analysis struct {
	Ticker           string      `json:"ticker"`
	SourceKey        string      `json:"source_key"`
	KeyMetrics       []KeyMetric `json:"key_metrics"`
	NarrativeSummary []Section   `json:"narrative_summary,omitempty"`
	ForwardGuidance  []Guidance  `json:"forward_guidance,omitempty"`
}

// Validate enforces the extraction schema: at least one well-formed numeric
// metric must be present.
func (a *Analysis) Validate() error {
	if a.SourceKey == "" {
		return fmt.Errorf("%w: analysis missing source key", ErrInvalidPayload)
	}
	if len(a.KeyMetrics) == 0 {
		return fmt.Errorf("%w: no key metrics extracted", ErrExtractionInvalid)
	}
	for i, m := range a.KeyMetrics {
		if m.Name == "" {
			return fmt.Errorf("%w: metric %d has no name", ErrExtractionInvalid, i)
		}
	}
	return nil
}
