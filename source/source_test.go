package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

const scenarioCSV = `id,raw_text,author_name,in_stock
1,The new smartphone has a great camera and long battery life.,Jane Doe,True
2,A quick memo about Q3 inventory status.,John Smith,False
3,Detailed specifications for the upcoming Q1 product launch.,Alice,True
4,Short note about supply chain delay.,Bob,False
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestClassify(t *testing.T) {
	tests := []struct {
		identifier string
		want       Kind
	}{
		{"http://example.com/ecommerce-report", KindRemote},
		{"https://example.com/a.csv", KindRemote},
		{"HTTPS://EXAMPLE.COM", KindRemote},
		{"ftp://example.com/file.csv", KindTabular},
		{"file:///tmp/data.csv", KindTabular},
		{"data/products.csv", KindTabular},
		{"/abs/path/report.xlsx", KindTabular},
		{"", KindTabular},
		{"%zz not a url", KindTabular},
		{"example.com/page", KindTabular},
	}
	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.identifier))
		})
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]Format{
		"a.csv":    FormatCSV,
		"a.TXT":    FormatCSV,
		"a.tsv":    FormatTSV,
		"a.xlsx":   FormatXLSX,
		"a.jsonl":  FormatJSONL,
		"a.ndjson": FormatJSONL,
		"a.dat":    FormatCSV,
		"noext":    FormatCSV,
	}
	for path, want := range tests {
		assert.Equal(t, want, FormatOf(path), path)
	}
}

func TestTabularHandler_ScenarioCSV(t *testing.T) {
	path := writeFile(t, "products.csv", scenarioCSV)
	h := NewTabularHandler(path, nil)

	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Validate(batch))
	require.Len(t, batch.Records, 4)
	assert.Equal(t, path, batch.Source)

	first := batch.Records[0]
	assert.Equal(t, "1", first.ID())
	assert.Equal(t, int64(1), first[core.FieldID])
	assert.Equal(t, "Jane Doe", first["author_name"])
	assert.Equal(t, true, first[core.FieldInStock])
	assert.Equal(t, false, batch.Records[1][core.FieldInStock])

	assert.Equal(t, map[string]string{
		MetaSourceType: "tabular",
		MetaPathOrURL:  path,
		MetaFormat:     "csv",
	}, h.Metadata())
}

func TestTabularHandler_SyntheticIDs(t *testing.T) {
	path := writeFile(t, "notes.txt", "raw_text,score\nfirst,1.5\nsecond,\n")
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "1", batch.Records[0].ID())
	assert.Equal(t, "2", batch.Records[1].ID())
	assert.Equal(t, 1.5, batch.Records[0]["score"])
	assert.False(t, batch.Records[1].Has("score"))
}

func TestTabularHandler_NumericLookingText(t *testing.T) {
	path := writeFile(t, "reviews.csv", "id,raw_text,in_stock,rating\n1,Great phone,True,4\n2,10/10,False,4.5\n3,5,True,n/a\n")
	h := NewTabularHandler(path, nil)

	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Validate(batch))
	require.Len(t, batch.Records, 3)

	assert.Equal(t, "10/10", batch.Records[1].Text())
	assert.Equal(t, "5", batch.Records[2].Text())
	assert.Equal(t, true, batch.Records[2][core.FieldInStock])
	// A column mixing numbers and text stays text
	assert.Equal(t, "4", batch.Records[0]["rating"])
	assert.Equal(t, "n/a", batch.Records[2]["rating"])
}

func TestTabularHandler_ColumnTypes(t *testing.T) {
	path := writeFile(t, "mixed.csv", "id,raw_text,price,flag,code\n1,a,3,true,007\n2,b,3.5,,x\n")
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	assert.Equal(t, 3.0, batch.Records[0]["price"])
	assert.Equal(t, 3.5, batch.Records[1]["price"])
	assert.Equal(t, true, batch.Records[0]["flag"])
	assert.False(t, batch.Records[1].Has("flag"))
	assert.Equal(t, "007", batch.Records[0]["code"])
}

func TestTabularHandler_TSV(t *testing.T) {
	path := writeFile(t, "rows.tsv", "id\traw_text\n7\thello, world\n")
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "hello, world", batch.Records[0].Text())
}

func TestTabularHandler_UnknownExtensionReadsCSV(t *testing.T) {
	path := writeFile(t, "export.dat", "id,raw_text\n1,text\n")
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Records, 1)
}

func TestTabularHandler_MalformedYieldsEmpty(t *testing.T) {
	path := writeFile(t, "bad.csv", "id,raw_text\n1,ok\n2,too,many,fields\n")
	h := NewTabularHandler(path, nil)

	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	assert.True(t, batch.IsEmpty())
	assert.ErrorIs(t, h.Validate(batch), core.ErrSourceEmpty)
}

func TestTabularHandler_HeaderOnlyIsEmpty(t *testing.T) {
	path := writeFile(t, "empty.csv", "id,raw_text\n")
	h := NewTabularHandler(path, nil)
	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, h.Validate(batch), core.ErrSourceEmpty)
}

func TestTabularHandler_MissingTextIsFormatInvalid(t *testing.T) {
	path := writeFile(t, "partial.csv", "id,raw_text\n1,ok\n2,\n")
	h := NewTabularHandler(path, nil)
	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	err = h.Validate(batch)
	assert.ErrorIs(t, err, core.ErrSourceFormatInvalid)
	assert.ErrorIs(t, err, core.ErrMissingText)
}

func TestTabularHandler_MissingFileIsUnreachable(t *testing.T) {
	for _, name := range []string{"missing.csv", "missing.xlsx", "missing.jsonl"} {
		t.Run(name, func(t *testing.T) {
			h := NewTabularHandler(filepath.Join(t.TempDir(), name), nil)
			batch, err := h.Parse(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrSourceUnreachable)
			assert.True(t, core.IsRetryable(err))
			assert.True(t, batch.IsEmpty())
		})
	}
}

func TestTabularHandler_JSONL(t *testing.T) {
	content := `{"id": 10, "raw_text": "first", "in_stock": true, "price": 9.5, "tags": ["x"]}

{"id": "11", "raw_text": "second", "in_stock": null}
`
	path := writeFile(t, "feed.jsonl", content)
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	assert.Equal(t, int64(10), batch.Records[0][core.FieldID])
	assert.Equal(t, 9.5, batch.Records[0]["price"])
	assert.False(t, batch.Records[0].Has("tags"))
	assert.Equal(t, "11", batch.Records[1].ID())
	assert.False(t, batch.Records[1].Has(core.FieldInStock))
}

func TestTabularHandler_JSONLScalarText(t *testing.T) {
	path := writeFile(t, "feed.jsonl", "{\"id\": 1, \"raw_text\": 5}\n{\"id\": 2, \"raw_text\": true}\n")
	h := NewTabularHandler(path, nil)
	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Validate(batch))
	assert.Equal(t, "5", batch.Records[0].Text())
	assert.Equal(t, "true", batch.Records[1].Text())
}

func TestTabularHandler_JSONLSyntheticIDs(t *testing.T) {
	path := writeFile(t, "feed.ndjson", "{\"raw_text\": \"a\"}\n{\"raw_text\": \"b\"}\n")
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "2", batch.Records[1].ID())
}

func TestTabularHandler_JSONLMalformed(t *testing.T) {
	path := writeFile(t, "feed.jsonl", "{\"raw_text\": \"a\"}\nnot json\n")
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	assert.True(t, batch.IsEmpty())
}

func TestTabularHandler_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range [][]string{
		{"id", "raw_text", "in_stock"},
		{"1", "Spreadsheet row one", "TRUE"},
		{"", "", ""},
		{"2", "Spreadsheet row two", "false"},
	} {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.Save(path))

	h := NewTabularHandler(path, nil)
	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Validate(batch))
	require.Len(t, batch.Records, 2)
	assert.Equal(t, true, batch.Records[0][core.FieldInStock])
	assert.Equal(t, "2", batch.Records[1].ID())
	assert.Equal(t, "xlsx", h.Metadata()[MetaFormat])
}

func TestTabularHandler_CorruptXLSXYieldsEmpty(t *testing.T) {
	path := writeFile(t, "broken.xlsx", "this is not a zip archive")
	batch, err := NewTabularHandler(path, nil).Parse(context.Background())
	require.NoError(t, err)
	assert.True(t, batch.IsEmpty())
}

func TestTabularHandler_CanceledContext(t *testing.T) {
	path := writeFile(t, "products.csv", scenarioCSV)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTabularHandler(path, nil).Parse(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrSourceUnreachable)
}

type stubExtractor struct {
	records []core.Record
	err     error
	calls   int
}

func (s *stubExtractor) Extract(ctx context.Context, identifier string) ([]core.Record, error) {
	s.calls++
	return s.records, s.err
}

func TestRemoteHandler_Parse(t *testing.T) {
	ex := &stubExtractor{records: []core.Record{
		{"id": 101, "raw_text": "a"},
		{"id": 102, "raw_text": "b"},
	}}
	h := NewRemoteHandler("https://example.com/ecommerce-report", ex, nil)

	batch, err := h.Parse(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Validate(batch))
	assert.Len(t, batch.Records, 2)
	assert.Equal(t, int64(101), batch.Records[0][core.FieldID])
	assert.Equal(t, "https://example.com/ecommerce-report", batch.Source)
	assert.Equal(t, map[string]string{MetaSourceType: "remote", MetaPathOrURL: "https://example.com/ecommerce-report"}, h.Metadata())
}

func TestRemoteHandler_Errors(t *testing.T) {
	t.Run("untagged error is unreachable", func(t *testing.T) {
		h := NewRemoteHandler("https://x", &stubExtractor{err: errors.New("dial tcp: refused")}, nil)
		_, err := h.Parse(context.Background())
		assert.ErrorIs(t, err, core.ErrSourceUnreachable)
	})

	t.Run("format error is kept", func(t *testing.T) {
		h := NewRemoteHandler("https://x", &stubExtractor{err: core.ErrSourceFormatInvalid}, nil)
		_, err := h.Parse(context.Background())
		assert.ErrorIs(t, err, core.ErrSourceFormatInvalid)
		assert.False(t, core.IsRetryable(err))
	})

	t.Run("empty error yields empty batch", func(t *testing.T) {
		h := NewRemoteHandler("https://x", &stubExtractor{err: core.ErrSourceEmpty}, nil)
		batch, err := h.Parse(context.Background())
		require.NoError(t, err)
		assert.ErrorIs(t, h.Validate(batch), core.ErrSourceEmpty)
	})

	t.Run("no extractor", func(t *testing.T) {
		h := NewRemoteHandler("https://x", nil, nil)
		_, err := h.Parse(context.Background())
		assert.ErrorIs(t, err, ErrExtractorRequired)
		assert.False(t, core.IsRetryable(err))
	})

	t.Run("nothing extracted", func(t *testing.T) {
		h := NewRemoteHandler("https://x", &stubExtractor{}, nil)
		batch, err := h.Parse(context.Background())
		require.NoError(t, err)
		assert.ErrorIs(t, h.Validate(batch), core.ErrSourceEmpty)
	})
}

func TestFactory_Handler(t *testing.T) {
	ex := &stubExtractor{}
	f := NewFactory(ex, nil)

	remote := f.Handler("https://example.com/ecommerce-report")
	assert.Equal(t, KindRemote, remote.Kind())
	assert.Equal(t, "https://example.com/ecommerce-report", remote.Identifier())

	tabular := f.Handler("data.xlsx")
	assert.Equal(t, KindTabular, tabular.Kind())
	assert.Equal(t, FormatXLSX, tabular.(*TabularHandler).Format())
}

func TestNewHandler(t *testing.T) {
	tests := []struct {
		identifier string
		kind       Kind
	}{
		{"http://shop.example/ecommerce-report", KindRemote},
		{"HTTPS://shop.example/p", KindRemote},
		{"ftp://shop.example/p.csv", KindTabular},
		{"inventory.tsv", KindTabular},
		{"", KindTabular},
	}
	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			h := NewHandler(tt.identifier, &stubExtractor{}, nil)
			assert.Equal(t, tt.kind, h.Kind())
			assert.Equal(t, tt.identifier, h.Identifier())
		})
	}
}
