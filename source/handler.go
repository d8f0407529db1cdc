package source

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/poiesic/recall/core"
)

// Kind tags a Handler variant.
type Kind string

const (
	// KindTabular reads a local tabular file.
	KindTabular Kind = "tabular"
	// KindRemote extracts records from a remote document.
	KindRemote Kind = "remote"
)

// Metadata keys.
const (
	MetaSourceType = "source_type"
	MetaPathOrURL  = "path_or_url"
	MetaFormat     = "format"
)

// Handler normalizes one source into records.
type Handler interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Identifier returns the source identifier the handler was built for.
	Identifier() string

	// Parse reads the source. Only I/O failures are returned as errors;
	// unparseable content yields an empty batch.
	Parse(ctx context.Context) (core.Batch, error)

	// Validate rejects empty batches and batches with incomplete records.
	Validate(batch core.Batch) error

	// Metadata describes the source.
	Metadata() map[string]string
}

// Extractor runs a structured extraction query against a remote document.
// Implementations must be safe for concurrent use. Failures to reach the
// document should wrap core.ErrSourceUnreachable.
type Extractor interface {
	Extract(ctx context.Context, identifier string) ([]core.Record, error)
}

// Classify selects the handler variant for identifier. It is total: any
// string that parses as a URL with an http or https scheme is remote, every
// other string is tabular.
func Classify(identifier string) Kind {
	u, err := url.Parse(strings.TrimSpace(identifier))
	if err != nil {
		return KindTabular
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return KindRemote
	default:
		return KindTabular
	}
}

// Factory builds handlers from identifiers.
type Factory struct {
	extractor Extractor
	logger    *slog.Logger
}

// NewFactory creates a Factory. extractor serves remote identifiers; logger
// may be nil.
func NewFactory(extractor Extractor, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{extractor: extractor, logger: logger}
}

// Handler returns the handler for identifier.
func (f *Factory) Handler(identifier string) Handler {
	return NewHandler(identifier, f.extractor, f.logger)
}

// NewHandler selects the variant for identifier with Classify and builds it.
func NewHandler(identifier string, extractor Extractor, logger *slog.Logger) Handler {
	if Classify(identifier) == KindRemote {
		return NewRemoteHandler(identifier, extractor, logger)
	}
	return NewTabularHandler(identifier, logger)
}

// validate is shared by every variant.
func validate(batch core.Batch) error {
	return core.ValidateBatch(batch)
}
