package domain

import (
	"path/filepath"
	"strings"
)

// maxSheetTitleLen is the sheet-name limit imposed by the XLSX format.
const maxSheetTitleLen = 31

// SheetTitle derives a workbook sheet name from an input filename: the
// base name without its extension, truncated to 31 characters. Characters
// the XLSX format forbids in sheet names are replaced with underscores.
func SheetTitle(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	stem = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, stem)

	if stem == "" {
		return "Sheet"
	}

	runes := []rune(stem)
	if len(runes) > maxSheetTitleLen {
		runes = runes[:maxSheetTitleLen]
	}
	return string(runes)
}
