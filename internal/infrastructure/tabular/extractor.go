package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/textenc"
)

// Extractor resolves an encoding once per file, detects the delimiter on
// the first decoded line, and streams kept rows out of a csv reader.
type Extractor struct {
	resolver *textenc.Resolver
}

func NewExtractor(resolver *textenc.Resolver) *Extractor {
	return &Extractor{resolver: resolver}
}

func (e *Extractor) Extract(_ context.Context, name string, data []byte) (*domain.Table, error) {
	res, err := e.resolver.Resolve(data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}

	// The probe only covered the first lines; a failure past it is a
	// per-file decode failure, never fatal to the batch.
	decoded, err := io.ReadAll(res.Reader(bytes.NewReader(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrDecodeFailure, "decode "+name, err)
	}
	// Decoders that ignore the byte-order mark leave it in the text,
	// where it would pollute the first field of the first row.
	text := strings.TrimPrefix(string(decoded), "\uFEFF")

	// x/text decoders substitute U+FFFD instead of erroring, so a
	// malformed sequence past the probe window surfaces here rather
	// than as a read error.
	if strings.ContainsRune(text, utf8.RuneError) {
		return nil, domain.WrapError(domain.ErrDecodeFailure, "decode "+name,
			fmt.Errorf("invalid byte sequence past the probe window"))
	}

	delimiter := DetectDelimiter(firstLine(text))

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrDecodeFailure, "parse "+name, err)
		}
		if KeepRow(record) {
			rows = append(rows, record)
		}
	}

	return &domain.Table{
		Encoding:  res.Name,
		Delimiter: delimiter,
		Rows:      rows,
	}, nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSuffix(text[:i], "\r")
	}
	return text
}
