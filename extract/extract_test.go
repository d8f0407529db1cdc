package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/poiesic/recall/core"
)

const productPage = `<!doctype html>
<html><body>
<div itemscope itemtype="https://schema.org/Product">
  <meta itemprop="productID" content="SKU-1">
  <h1 itemprop="name">Trail Runner</h1>
  <p itemprop="description">Lightweight   shoe for
     rocky trails.</p>
  <div itemprop="offers" itemscope itemtype="https://schema.org/Offer">
    <span itemprop="price" content="89.50">$89.50</span>
    <link itemprop="availability" href="https://schema.org/InStock">
  </div>
  <div itemprop="review" itemscope itemtype="https://schema.org/Review">
    <span itemprop="name">Not the product name</span>
  </div>
</div>
<section>
  <div itemscope itemtype="http://schema.org/Product">
    <span itemprop="name">Rain Shell</span>
    <span itemprop="description">Packable jacket.</span>
    <div itemprop="offers" itemscope itemtype="http://schema.org/Offer">
      <meta itemprop="availability" content="OutOfStock">
    </div>
  </div>
</section>
<div itemscope itemtype="https://schema.org/Organization">
  <span itemprop="name">Shop</span>
</div>
</body></html>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestFixtureExtractor(t *testing.T) {
	ex := NewFixtureExtractor()

	records, err := ex.Extract(context.Background(), "https://example.com/ecommerce-report")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "101", records[0].ID())
	assert.Equal(t, "102", records[1].ID())
	assert.True(t, records[0].Bool(core.FieldInStock))
	assert.False(t, records[1].Bool(core.FieldInStock))
	assert.Equal(t, int64(50), records[0]["review_count"])
	assert.Contains(t, records[0].Text(), "smart device sales")

	records, err = ex.Extract(context.Background(), "https://example.com/other")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFixtureExtractorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFixtureExtractor().Extract(ctx, "https://example.com/ecommerce-report")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseProducts(t *testing.T) {
	records := ParseProducts(parse(t, productPage))
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "SKU-1", first.ID())
	assert.Equal(t, "Trail Runner", first["title"])
	assert.Equal(t, "Lightweight shoe for rocky trails.", first.Text())
	assert.Equal(t, 89.5, first["price"])
	assert.Equal(t, true, first[core.FieldInStock])
	assert.NotContains(t, first, "review")

	second := records[1]
	assert.Equal(t, "2", second.ID())
	assert.Equal(t, "Rain Shell", second["title"])
	assert.Equal(t, false, second[core.FieldInStock])
	assert.NotContains(t, second, "price")
}

func TestParseProductsNone(t *testing.T) {
	assert.Empty(t, ParseProducts(parse(t, "<html><body><p>nothing</p></body></html>")))
}

func TestIsAvailable(t *testing.T) {
	tests := map[string]bool{
		"https://schema.org/InStock":            true,
		"http://schema.org/LimitedAvailability": true,
		"InStock":                               true,
		"schema:InStoreOnly":                    true,
		"https://schema.org/OutOfStock":         false,
		"SoldOut":                               false,
		"":                                      false,
	}
	for in, want := range tests {
		assert.Equal(t, want, isAvailable(in), in)
	}
}

func TestPropValue(t *testing.T) {
	doc := parse(t, `<div>
<a itemprop="url" href="/p/1">link</a>
<img itemprop="image" src="/i.png">
<data itemprop="sku" value="X9">ignored</data>
<time itemprop="releaseDate" datetime="2024-01-02">Jan 2</time>
<span itemprop="brand"> Acme
  Co </span>
</div>`)
	props := map[string]string{}
	collectProps(doc, props)
	assert.Equal(t, "/p/1", props["url"])
	assert.Equal(t, "/i.png", props["image"])
	assert.Equal(t, "X9", props["sku"])
	assert.Equal(t, "2024-01-02", props["releaseDate"])
	assert.Equal(t, "Acme Co", props["brand"])
}

func TestMicrodataExtractor(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(productPage))
	}))
	defer srv.Close()

	ex := NewMicrodataExtractor(MicrodataOptions{UserAgent: "recall-test", RatePerSecond: 100})
	records, err := ex.Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "recall-test", gotUA)
}

func TestMicrodataExtractorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := NewMicrodataExtractor(MicrodataOptions{RatePerSecond: 100})
	_, err := ex.Extract(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSourceUnreachable))
	assert.Contains(t, err.Error(), "503")
}

func TestMicrodataExtractorTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ex := NewMicrodataExtractor(MicrodataOptions{RatePerSecond: 100})
	_, err := ex.Extract(context.Background(), url)
	assert.ErrorIs(t, err, core.ErrSourceUnreachable)
}

func TestMicrodataExtractorMalformedURL(t *testing.T) {
	ex := NewMicrodataExtractor(MicrodataOptions{RatePerSecond: 100})
	_, err := ex.Extract(context.Background(), "http://[::1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSourceFormatInvalid)
	assert.False(t, core.IsRetryable(err))
}

func TestProductRecordKeepsTextAsWritten(t *testing.T) {
	rec := productRecord(map[string]string{
		"sku":         "42",
		"description": "5",
		"name":        "10",
		"price":       "9.99",
	}, 1)
	assert.Equal(t, "5", rec.Text())
	assert.Equal(t, "10", rec["title"])
	assert.Equal(t, int64(42), rec[core.FieldID])
	assert.Equal(t, 9.99, rec["price"])
	require.NoError(t, core.ValidateRecord(rec))
}

func TestMicrodataExtractorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := NewMicrodataExtractor(MicrodataOptions{})
	_, err := ex.Extract(ctx, "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrSourceUnreachable))
}

func TestNewMicrodataExtractorDefaults(t *testing.T) {
	ex := NewMicrodataExtractor(MicrodataOptions{})
	assert.Equal(t, DefaultUserAgent, ex.userAgent)
	assert.Equal(t, DefaultTimeout, ex.client.Timeout)
	assert.NotNil(t, ex.limiter)
}
