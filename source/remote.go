package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/recall/core"
)

// ErrExtractorRequired is returned by a remote handler built without an Extractor.
var ErrExtractorRequired = errors.New("extractor required")

// RemoteHandler produces records by running a structured extraction against
// a remote document.
type RemoteHandler struct {
	url       string
	extractor Extractor
	logger    *slog.Logger
}

var _ Handler = (*RemoteHandler)(nil)

// NewRemoteHandler creates a handler for the document at url.
func NewRemoteHandler(url string, extractor Extractor, logger *slog.Logger) *RemoteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteHandler{
		url:       url,
		extractor: extractor,
		logger:    logger.With("component", "remote-handler"),
	}
}

// Kind implements Handler.
func (h *RemoteHandler) Kind() Kind {
	return KindRemote
}

// Identifier implements Handler.
func (h *RemoteHandler) Identifier() string {
	return h.url
}

// Metadata implements Handler.
func (h *RemoteHandler) Metadata() map[string]string {
	return map[string]string{
		MetaSourceType: string(KindRemote),
		MetaPathOrURL:  h.url,
	}
}

// Validate implements Handler.
func (h *RemoteHandler) Validate(batch core.Batch) error {
	return validate(batch)
}

// Parse runs the extraction. Extractor errors outside the taxonomy are
// reported as core.ErrSourceUnreachable. A handler without an extractor is
// miswired and fails with ErrExtractorRequired alone, which is never retried.
func (h *RemoteHandler) Parse(ctx context.Context) (core.Batch, error) {
	empty := core.Batch{Source: h.url, Records: []core.Record{}}
	if h.extractor == nil {
		return empty, ErrExtractorRequired
	}

	extracted, err := h.extractor.Extract(ctx, h.url)
	if err != nil {
		switch core.KindOf(err) {
		case core.KindUnknown:
			return empty, fmt.Errorf("%w: %w", core.ErrSourceUnreachable, err)
		case core.KindSourceEmpty:
			h.logger.Warn("extraction produced no usable records", "url", h.url, "err", err)
			return empty, nil
		default:
			return empty, err
		}
	}

	records := make([]core.Record, 0, len(extracted))
	for _, r := range extracted {
		records = append(records, core.NewRecord(r))
	}
	h.logger.Debug("extracted records", "url", h.url, "records", len(records))
	return core.Batch{Source: h.url, Records: records}, nil
}
