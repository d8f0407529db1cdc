package core

import (
	"maps"
	"strconv"
)

// Well-known record fields.
const (
	FieldID                = "id"
	FieldRawText           = "raw_text"
	FieldInStock           = "in_stock"
	FieldClassification    = "llm_classification"
	FieldInventoryVelocity = "inventory_velocity"
	FieldPriorityScore     = "priority_score"
)

// Record is the canonical unit of data flowing through every stage.
// Values are scalars: string, bool, int64 or float64.
//
// A Record is immutable by replacement: stages derive new values with With
// and never write into a Record they received.
type Record map[string]any

// NewRecord copies fields into a new Record, normalizing numeric values.
func NewRecord(fields map[string]any) Record {
	r := make(Record, len(fields))
	for k, v := range fields {
		if v = Normalize(v); v != nil {
			r[k] = v
		}
	}
	return r
}

// With returns a copy of r with key set to value. r is left untouched.
func (r Record) With(key string, value any) Record {
	out := make(Record, len(r)+1)
	maps.Copy(out, r)
	if value = Normalize(value); value == nil {
		delete(out, key)
	} else {
		out[key] = value
	}
	return out
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// ID returns the record id rendered as a string, or "" when absent.
func (r Record) ID() string {
	v, ok := r[FieldID]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Text returns raw_text when it is a string.
func (r Record) Text() string {
	s, _ := r[FieldRawText].(string)
	return s
}

// String returns the value of key as a string and whether it was a string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Bool returns the truthiness of key; absent fields are false.
func (r Record) Bool(key string) bool {
	return Truthy(r[key])
}

// Float returns the numeric value of key and whether it was numeric.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Batch is an ordered sequence of records from one source and one run.
type Batch struct {
	Source  string
	RunID   string
	Records []Record
}

// Len returns the number of records.
func (b Batch) Len() int {
	return len(b.Records)
}

// IsEmpty reports whether the batch carries no records.
func (b Batch) IsEmpty() bool {
	return len(b.Records) == 0
}

// WithRecords returns a batch with the same identity carrying records.
func (b Batch) WithRecords(records []Record) Batch {
	return Batch{Source: b.Source, RunID: b.RunID, Records: records}
}
