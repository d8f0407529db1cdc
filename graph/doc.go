// Package graph converts enriched records into a typed subject/predicate/object
// knowledge graph following a fixed schema.org-based ontology.
//
// # Mapping
//
// For every record carrying an id the Mapper emits a Product entity and, when
// the record was enriched, derived Review and Rating entities linked back to
// the product:
//
//	Product_{id}  rdf:type              schema:Product
//	Product_{id}  schema:description    "raw_text"
//	Product_{id}  schema:availability   schema:InStock | schema:OutOfStock
//	Product_{id}  schema:category       "llm_classification"
//	Review_{id}   schema:itemReviewed   Product_{id}
//	Product_{id}  analysis:inventoryVelocity "v"^^xsd:float
//	Product_{id}  schema:aggregateRating Rating_{id}
//
// Entity IRIs are a pure function of the record id, so re-ingesting a record
// overwrites its subgraph instead of duplicating it.
//
// # Serialization
//
// WriteNTriples and WriteTurtle render a triple set in a deterministic order
// for inspection and export.
package graph
