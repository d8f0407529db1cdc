package graph

import (
	"math"

	"github.com/poiesic/recall/core"
)

// Mapper converts enriched records into triples. It holds no state and is
// safe for concurrent use.
type Mapper struct{}

// NewMapper creates a Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map converts every record of batch and returns the resulting triple set,
// sorted and free of duplicates. Records without an id are skipped.
func (m *Mapper) Map(batch core.Batch) []Triple {
	var triples []Triple
	for _, record := range batch.Records {
		triples = append(triples, m.MapRecord(record)...)
	}
	return Normalize(triples)
}

// MapRecord converts a single record. Absent optional fields omit their
// triples, so a partially enriched record yields a partial subgraph.
func (m *Mapper) MapRecord(record core.Record) []Triple {
	id := record.ID()
	if id == "" {
		return nil
	}

	product := ProductIRI(id)
	triples := []Triple{
		{Subject: product, Predicate: RDFType, Object: IRI(SchemaProduct)},
	}

	if record.Has(core.FieldRawText) {
		text, ok := record.String(core.FieldRawText)
		if !ok {
			text = core.FormatValue(record[core.FieldRawText])
		}
		triples = append(triples, Triple{Subject: product, Predicate: SchemaDescription, Object: StringLiteral(text)})
	}

	if record.Has(core.FieldInStock) {
		availability := SchemaOutOfStock
		if record.Bool(core.FieldInStock) {
			availability = SchemaInStock
		}
		triples = append(triples, Triple{Subject: product, Predicate: SchemaAvailability, Object: IRI(availability)})
	}

	if label, ok := record.String(core.FieldClassification); ok && label != "" {
		review := ReviewIRI(id)
		triples = append(triples,
			Triple{Subject: product, Predicate: SchemaCategory, Object: StringLiteral(label)},
			Triple{Subject: review, Predicate: RDFType, Object: IRI(SchemaReview)},
			Triple{Subject: review, Predicate: SchemaItemReviewed, Object: IRI(product)},
			Triple{Subject: review, Predicate: SchemaReviewBody, Object: StringLiteral(ReviewBody(label))},
		)
	}

	if velocity, ok := record.Float(core.FieldInventoryVelocity); ok {
		triples = append(triples, Triple{Subject: product, Predicate: AnalysisInventoryVelocity, Object: FloatLiteral(velocity)})
	}

	if priority, ok := record.Float(core.FieldPriorityScore); ok {
		rating := RatingIRI(id)
		triples = append(triples,
			Triple{Subject: rating, Predicate: RDFType, Object: IRI(SchemaRating)},
			Triple{Subject: rating, Predicate: SchemaRatingValue, Object: FloatLiteral(roundTenth(priority))},
			Triple{Subject: rating, Predicate: SchemaBestRating, Object: FloatLiteral(BestRating)},
			Triple{Subject: product, Predicate: SchemaAggregateRating, Object: IRI(rating)},
		)
	}

	return triples
}

// ReviewBody synthesizes the review text for a classification label.
func ReviewBody(label string) string {
	return "LLM insight: " + label
}

func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}
