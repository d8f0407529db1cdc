// Package extract implements source.Extractor for remote documents.
//
// FixtureExtractor answers a canned structured query and is useful for demos
// and tests. MicrodataExtractor fetches an HTML page and reads schema.org
// Product items from its microdata.
package extract
