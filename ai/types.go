package ai

import "slices"

// Classification labels.
const (
	LabelLongReport    = "LongReport"
	LabelDetailedSpec  = "DetailedSpec"
	LabelProductReview = "ProductReview"
)

// Labels defines the default label set a classifier chooses from.
var Labels = []string{
	LabelLongReport,
	LabelDetailedSpec,
	LabelProductReview,
}

// IsLabel reports whether label is one of labels.
func IsLabel(labels []string, label string) bool {
	return slices.Contains(labels, label)
}
