// Package excelize serializes extracted sheets into an XLSX workbook,
// one sheet per input file.
package excelize

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
)

const defaultSheetName = "Sheet1"

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build writes one sheet per extracted input. Each sheet leads with the
// source filename, the resolved encoding and the detected delimiter, a
// separator row, then the kept rows.
func (b *Builder) Build(_ context.Context, sheets []domain.Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("build workbook: no sheets to write")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	used := map[string]bool{}
	keptDefault := false
	for _, sheet := range sheets {
		name := uniqueTitle(used, sheet.Name)
		if name == defaultSheetName {
			keptDefault = true
		}
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, sheet); err != nil {
			return nil, err
		}
	}

	if !keptDefault {
		if err := f.DeleteSheet(defaultSheetName); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, sheet domain.Sheet) error {
	header := [][]interface{}{
		{fmt.Sprintf("File Name: %s", sheet.SourceName)},
		{fmt.Sprintf("Encoding: %s", sheet.Encoding)},
		{fmt.Sprintf("Delimiter: %q", sheet.Delimiter)},
	}
	rowIdx := 1
	for _, row := range header {
		if err := f.SetSheetRow(name, fmt.Sprintf("A%d", rowIdx), &row); err != nil {
			return fmt.Errorf("write sheet %q header: %w", name, err)
		}
		rowIdx++
	}
	rowIdx++ // separator row between metadata and data

	for _, row := range sheet.Rows {
		cells := make([]interface{}, len(row))
		for i, field := range row {
			cells[i] = field
		}
		if err := f.SetSheetRow(name, fmt.Sprintf("A%d", rowIdx), &cells); err != nil {
			return fmt.Errorf("write sheet %q row %d: %w", name, rowIdx, err)
		}
		rowIdx++
	}
	return nil
}

// uniqueTitle disambiguates colliding sheet titles with a numeric suffix,
// staying inside the 31-character limit.
func uniqueTitle(used map[string]bool, title string) string {
	if !used[title] {
		used[title] = true
		return title
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		runes := []rune(title)
		if len(runes)+len(suffix) > 31 {
			runes = runes[:31-len(suffix)]
		}
		candidate := string(runes) + suffix
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}
