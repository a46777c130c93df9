package persistence

import (
	"context"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// ParishData is one extracted schedule fact (spec §3 ParishData),
// append-only from the core's perspective — there is no upsert.
type ParishData struct {
	ParishID         int64
	FactType         string // ReconciliationSchedule | AdorationSchedule | MassSchedule
	FactValue        string
	FactSourceURL    string
	ExtractionMethod string // keyword_based | keyword_based_simple | ai_gemini
	ConfidenceScore  *int   // null when not AI
	AIStructuredData []byte // opaque JSON when AI, else nil
}

// AppendParishData inserts one fact row. Never deduped — each extraction
// attempt, successful or not comparably scored, is its own row (spec
// §4.G: "no dedupe; each extraction is its own fact row").
func (s *Store) AppendParishData(ctx context.Context, d ParishData) error {
	const q = `
		INSERT INTO parish_data (
			parish_id, fact_type, fact_value, fact_source_url,
			extraction_method, confidence_score, ai_structured_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var aiData interface{}
	if len(d.AIStructuredData) > 0 {
		aiData = d.AIStructuredData
	}
	_, err := s.db.ExecContext(ctx, q,
		d.ParishID, d.FactType, d.FactValue, d.FactSourceURL,
		d.ExtractionMethod, d.ConfidenceScore, aiData,
	)
	if err != nil {
		return pipelineerrors.FailedToWithDetails("append parish data", "persistence", d.FactType, err)
	}
	return nil
}
