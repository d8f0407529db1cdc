// Package source turns a source identifier into a batch of records.
//
// Every identifier maps to exactly one Handler variant (see Classify):
// http and https URLs go to the remote variant, which runs a structured
// extraction through an Extractor; everything else is treated as a path to a
// tabular file. Unknown or missing file extensions are read as
// comma-separated CSV.
//
// Parse reports only I/O failures, tagged core.ErrSourceUnreachable.
// Content that cannot be parsed yields an empty batch, which Validate then
// rejects with core.ErrSourceEmpty; structurally incomplete records are
// rejected with core.ErrSourceFormatInvalid.
package source
