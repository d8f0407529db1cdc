package extract

import (
	"context"
	"strings"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/source"
)

// FixtureMarker selects the canned e-commerce report.
const FixtureMarker = "ecommerce-report"

// FixtureExtractor returns two inventory report records for any identifier
// containing FixtureMarker and nothing otherwise. It never fails.
type FixtureExtractor struct{}

var _ source.Extractor = FixtureExtractor{}

// NewFixtureExtractor returns the fixture extractor.
func NewFixtureExtractor() source.Extractor {
	return FixtureExtractor{}
}

// Extract implements source.Extractor.
func (FixtureExtractor) Extract(ctx context.Context, identifier string) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.Contains(identifier, FixtureMarker) {
		return []core.Record{}, nil
	}
	return []core.Record{
		core.NewRecord(map[string]any{
			"id":           101,
			"title":        "Q1 Inventory Summary",
			"price":        0.0,
			"review_count": 50,
			"author_name":  "Web Scraper",
			"in_stock":     true,
			"raw_text":     "Q1 saw a massive spike in smart device sales across North America. Inventory velocity is high.",
		}),
		core.NewRecord(map[string]any{
			"id":           102,
			"title":        "Q2 Key Takeaways",
			"price":        0.0,
			"review_count": 12,
			"author_name":  "Web Scraper",
			"in_stock":     false,
			"raw_text":     "Minor delays in EU shipping chain impacted Q2 revenue targets slightly.",
		}),
	}, nil
}
