package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Category classifies what kind of information a passage carries. The
// ingestion pipeline assigns exactly one category per passage.
type Category string

const (
	CategoryLocation  Category = "location"
	CategoryContact   Category = "contact"
	CategoryProcedure Category = "procedure"
	CategoryGeneral   Category = "general"
)

// ParseCategory maps a raw metadata value to a Category, defaulting to
// general for unknown or missing values.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryLocation, CategoryContact, CategoryProcedure:
		return Category(s)
	default:
		return CategoryGeneral
	}
}

// Passage is an immutable retrievable chunk of scraped office text.
// The store owns the embedding; the retrieval engine only reads it.
type Passage struct {
	ID        uuid.UUID
	Text      string
	Embedding pgvector.Vector
	Unit      string // administrative unit identifier, may be empty
	UnitName  string // display name, may differ from the identifier
	Category  Category
	Title     string
	SourceURL string
	// Location metadata, present on location-category passages only.
	Building string
	Floor    string
	Room     string
	// Model that produced the embedding, recorded so a model upgrade can
	// find and re-embed stale rows.
	EmbedderVersion string
	CreatedAt       time.Time
}

// Stage tags which retrieval pass produced a candidate.
type Stage string

const (
	StageBroad  Stage = "stage1"
	StageScoped Stage = "stage2"
)

// ScoredPassage is a passage paired with its similarity score for one
// query. Higher scores are more relevant. Produced fresh per query.
type ScoredPassage struct {
	Passage Passage
	Score   float32
	Stage   Stage
}

// ResolvedUnit is one entry of a UnitSet: a unit identifier with the
// aggregate relevance its stage-1 passages contributed.
type ResolvedUnit struct {
	ID    string
	Name  string
	Score float32
}

// UnitSet is the ordered, deduplicated set of administrative units
// resolved from stage-1 candidates, most relevant first.
type UnitSet []ResolvedUnit

// IDs returns the unit identifiers in rank order.
func (s UnitSet) IDs() []string {
	ids := make([]string, len(s))
	for i, u := range s {
		ids[i] = u.ID
	}
	return ids
}

// RankedContext is the final ordered, deduplicated passage list handed to
// answer generation. Length is bounded by the configured maximum.
type RankedContext []ScoredPassage
