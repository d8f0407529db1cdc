package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/source"
)

// Defaults for MicrodataOptions.
const (
	DefaultUserAgent     = "recall/1.0"
	DefaultTimeout       = 30 * time.Second
	DefaultRatePerSecond = 2.0
	maxBodyBytes         = 10 << 20
)

// MicrodataOptions configures a MicrodataExtractor.
type MicrodataOptions struct {
	UserAgent     string
	Timeout       time.Duration
	RatePerSecond float64
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
	Logger *slog.Logger
}

// MicrodataExtractor reads schema.org Product microdata from HTML pages.
//
// Each element with itemscope and an itemtype ending in /Product becomes one
// record. Properties map as productID or sku to id, name to title,
// description to raw_text, price to price and availability to in_stock.
// Properties of a nested offers item are read as if they belonged to the
// product; other nested items are skipped. Products without an id get their
// 1-based position in the document.
type MicrodataExtractor struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
}

var _ source.Extractor = (*MicrodataExtractor)(nil)

// NewMicrodataExtractor creates an extractor with opts, applying defaults for
// zero values.
func NewMicrodataExtractor(opts MicrodataOptions) *MicrodataExtractor {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = DefaultRatePerSecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &MicrodataExtractor{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		userAgent: opts.UserAgent,
		logger:    opts.Logger.With("component", "microdata-extractor"),
	}
}

// Extract implements source.Extractor. Transport failures and non-2xx
// responses are core.ErrSourceUnreachable; an identifier that cannot form a
// request is core.ErrSourceFormatInvalid.
func (e *MicrodataExtractor) Extract(ctx context.Context, identifier string) ([]core.Record, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "microdata: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identifier, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSourceFormatInvalid, eris.Wrap(err, "microdata: build request"))
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", core.ErrSourceUnreachable, eris.Wrapf(err, "microdata: get %s", identifier))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %w", core.ErrSourceUnreachable, eris.Errorf("microdata: http %d from %s", resp.StatusCode, identifier))
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSourceUnreachable, eris.Wrap(err, "microdata: read body"))
	}

	records := ParseProducts(doc)
	e.logger.Debug("extracted products", "url", identifier, "products", len(records))
	return records, nil
}

// ParseProducts returns one record per schema.org Product item in doc.
func ParseProducts(doc *html.Node) []core.Record {
	var records []core.Record
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isProductScope(n) {
			props := map[string]string{}
			collectProps(n, props)
			records = append(records, productRecord(props, len(records)+1))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return records
}

func isProductScope(n *html.Node) bool {
	if !hasAttr(n, "itemscope") {
		return false
	}
	for _, t := range strings.Fields(attr(n, "itemtype")) {
		if strings.HasSuffix(t, "/Product") {
			return true
		}
	}
	return false
}

// collectProps gathers itemprop values below scope. The first value of a
// property wins.
func collectProps(scope *html.Node, props map[string]string) {
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		names := strings.Fields(attr(c, "itemprop"))
		if hasAttr(c, "itemscope") {
			// Offers describe the product's price and stock
			for _, name := range names {
				if name == "offers" {
					collectProps(c, props)
					break
				}
			}
			continue
		}
		if len(names) > 0 {
			value := propValue(c)
			for _, name := range names {
				if _, seen := props[name]; !seen {
					props[name] = value
				}
			}
		}
		collectProps(c, props)
	}
}

// propValue reads an itemprop value following the microdata rules.
func propValue(n *html.Node) string {
	if hasAttr(n, "content") {
		return strings.TrimSpace(attr(n, "content"))
	}
	switch n.DataAtom {
	case atom.A, atom.Link, atom.Area:
		return attr(n, "href")
	case atom.Img, atom.Audio, atom.Video, atom.Source, atom.Iframe, atom.Embed:
		return attr(n, "src")
	case atom.Data, atom.Meter:
		return attr(n, "value")
	case atom.Time:
		if v := attr(n, "datetime"); v != "" {
			return v
		}
	}
	return strings.Join(strings.Fields(textContent(n)), " ")
}

func productRecord(props map[string]string, position int) core.Record {
	fields := make(map[string]any, len(props)+1)
	for name, value := range props {
		switch name {
		case "productID", "sku", "name", "description", "availability":
		default:
			fields[name] = core.ParseCell(value)
		}
	}

	id := props["productID"]
	if id == "" {
		id = props["sku"]
	}
	if id != "" {
		fields[core.FieldID] = core.ParseCell(id)
	} else {
		fields[core.FieldID] = int64(position)
	}
	if v := props["name"]; v != "" {
		fields["title"] = v
	}
	if v := props["description"]; v != "" {
		fields[core.FieldRawText] = v
	}
	if v, ok := props["availability"]; ok {
		fields[core.FieldInStock] = isAvailable(v)
	}
	return core.NewRecord(fields)
}

// isAvailable maps a schema.org ItemAvailability value to a stock flag.
func isAvailable(v string) bool {
	v = v[strings.LastIndexAny(v, "/:")+1:]
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "instock", "limitedavailability", "onlineonly", "instoreonly", "presale":
		return true
	default:
		return false
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
