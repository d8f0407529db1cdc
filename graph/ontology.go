package graph

import "net/url"

// Namespaces used by the mapping.
const (
	SchemaNS   = "http://schema.org/"
	AnalysisNS = "urn:analysis-reports/"
	RDFNS      = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	XSDNS      = "http://www.w3.org/2001/XMLSchema#"
)

// Vocabulary terms.
const (
	RDFType = RDFNS + "type"

	SchemaProduct         = SchemaNS + "Product"
	SchemaReview          = SchemaNS + "Review"
	SchemaRating          = SchemaNS + "Rating"
	SchemaInStock         = SchemaNS + "InStock"
	SchemaOutOfStock      = SchemaNS + "OutOfStock"
	SchemaDescription     = SchemaNS + "description"
	SchemaAvailability    = SchemaNS + "availability"
	SchemaCategory        = SchemaNS + "category"
	SchemaItemReviewed    = SchemaNS + "itemReviewed"
	SchemaReviewBody      = SchemaNS + "reviewBody"
	SchemaRatingValue     = SchemaNS + "ratingValue"
	SchemaBestRating      = SchemaNS + "bestRating"
	SchemaAggregateRating = SchemaNS + "aggregateRating"

	AnalysisInventoryVelocity = AnalysisNS + "inventoryVelocity"

	XSDString  = XSDNS + "string"
	XSDFloat   = XSDNS + "float"
	XSDInteger = XSDNS + "integer"
	XSDBoolean = XSDNS + "boolean"
)

// BestRating is the top of the rating scale.
const BestRating = 5.0

// ProductIRI returns the product entity IRI for a record id.
func ProductIRI(id string) string {
	return AnalysisNS + "Product_" + url.PathEscape(id)
}

// ReviewIRI returns the derived review entity IRI for a record id.
func ReviewIRI(id string) string {
	return AnalysisNS + "Review_" + url.PathEscape(id)
}

// RatingIRI returns the derived rating entity IRI for a record id.
func RatingIRI(id string) string {
	return AnalysisNS + "Rating_" + url.PathEscape(id)
}

// prefixes maps namespace IRIs to the short names used by WriteTurtle.
var prefixes = []struct {
	name string
	ns   string
}{
	{"analysis", AnalysisNS},
	{"rdf", RDFNS},
	{"schema", SchemaNS},
	{"xsd", XSDNS},
}
