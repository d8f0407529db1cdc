package source

import (
	"path/filepath"
	"strings"
)

// Format is a tabular file encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatXLSX  Format = "xlsx"
	FormatJSONL Format = "jsonl"
)

// FormatOf picks the format from the file extension. Anything unrecognized
// is CSV.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".xlsx":
		return FormatXLSX
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}
