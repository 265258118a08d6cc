package tabular

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"unicode/utf16"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/textenc"
)

func newExtractor() *Extractor {
	return NewExtractor(textenc.NewResolver(0, 0))
}

func utf16leBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFE})
	for _, u := range utf16.Encode([]rune(s)) {
		buf.WriteByte(byte(u))
		buf.WriteByte(byte(u >> 8))
	}
	return buf.Bytes()
}

func TestExtractCommaDelimitedUTF8(t *testing.T) {
	e := newExtractor()
	data := []byte("name,qty\nwidget,2\n\n")

	table, err := e.Extract(context.Background(), "inventory.csv", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if table.Delimiter != ',' {
		t.Fatalf("delimiter = %q, want ','", table.Delimiter)
	}
	want := [][]string{{"name", "qty"}, {"widget", "2"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Fatalf("rows = %v, want %v", table.Rows, want)
	}
}

func TestExtractTabDelimitedUTF16DropsBlankTrailingLine(t *testing.T) {
	e := newExtractor()
	data := utf16leBytes(t, "h1\th2\nv1\tv2\n\n")

	table, err := e.Extract(context.Background(), "export.csv", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if table.Delimiter != '\t' {
		t.Fatalf("delimiter = %q, want tab", table.Delimiter)
	}
	if table.Encoding == "utf-8" || table.Encoding == "ascii" {
		t.Fatalf("encoding = %q for UTF-16 input", table.Encoding)
	}
	want := [][]string{{"h1", "h2"}, {"v1", "v2"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Fatalf("rows = %v, want %v", table.Rows, want)
	}
}

func TestExtractSemicolonWinsFirstLineCount(t *testing.T) {
	e := newExtractor()
	data := []byte("a,b;c;d\n1;2;3,4\n")

	table, err := e.Extract(context.Background(), "mixed.csv", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if table.Delimiter != ';' {
		t.Fatalf("delimiter = %q, want ';'", table.Delimiter)
	}
	want := [][]string{{"a,b", "c", "d"}, {"1", "2", "3,4"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Fatalf("rows = %v, want %v", table.Rows, want)
	}
}

func TestExtractKeepsSparseRows(t *testing.T) {
	e := newExtractor()
	data := []byte("a,b,c,d\n,,value,\n , , , \n")

	table, err := e.Extract(context.Background(), "sparse.csv", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := [][]string{{"a", "b", "c", "d"}, {"", "", "value", ""}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Fatalf("rows = %v, want %v", table.Rows, want)
	}
}

func TestExtractSingleColumnFallsBackToComma(t *testing.T) {
	e := newExtractor()
	data := []byte("singlecolumn\nrow2\n")

	table, err := e.Extract(context.Background(), "plain.txt", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if table.Delimiter != ',' {
		t.Fatalf("delimiter = %q, want ','", table.Delimiter)
	}
	want := [][]string{{"singlecolumn"}, {"row2"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Fatalf("rows = %v, want %v", table.Rows, want)
	}
}

func TestExtractQuotedFieldsSurviveVerbatim(t *testing.T) {
	e := newExtractor()
	data := []byte("name,note\nwidget,\"2,5 cm\"\n")

	table, err := e.Extract(context.Background(), "quoted.csv", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := [][]string{{"name", "note"}, {"widget", "2,5 cm"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Fatalf("rows = %v, want %v", table.Rows, want)
	}
}

func TestExtractMalformedBytesPastProbeFailAsDecodeFailure(t *testing.T) {
	e := newExtractor()
	// Clean first three lines satisfy the probe; the chopped final byte
	// leaves a malformed UTF-16 tail that only the full decode sees.
	data := utf16leBytes(t, "a\tb\nc\td\ne\tf\ng\th\n")
	data = data[:len(data)-1]

	_, err := e.Extract(context.Background(), "truncated.csv", data)
	if err == nil {
		t.Fatalf("Extract() accepted a truncated multibyte file")
	}
	if !domain.IsKind(err, domain.ErrDecodeFailure) {
		t.Fatalf("Extract() error = %v, want decode failure kind", err)
	}
}

func TestExtractEmptyFileYieldsNoRows(t *testing.T) {
	e := newExtractor()
	table, err := e.Extract(context.Background(), "empty.csv", nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(table.Rows) != 0 {
		t.Fatalf("rows = %v, want none", table.Rows)
	}
}
