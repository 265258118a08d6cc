package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/tabular"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/textenc"
	"github.com/selfcanonical/csvmerge/internal/infrastructure/workbook/excelize"
	"github.com/selfcanonical/csvmerge/internal/observability/logging"
)

// manifest is the YAML input of an offline merge run.
type manifest struct {
	Files  []string `yaml:"files"`
	Output string   `yaml:"output"`
}

func main() {
	manifestPath := flag.String("manifest", "", "path to a YAML manifest listing input files")
	outputPath := flag.String("o", "", "output workbook path (overrides the manifest)")
	probeLines := flag.Int("probe-lines", textenc.DefaultProbeLines, "lines decoded when probing an encoding")
	minConfidence := flag.Int("min-confidence", textenc.DefaultMinConfidence, "statistical detector confidence gate (0-100)")
	flag.Parse()

	logging.Setup("csvmerge-ctl", os.Getenv("LOG_LEVEL"))

	if *manifestPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*manifestPath, *outputPath, *probeLines, *minConfidence); err != nil {
		slog.Error("merge failed", "error", err)
		os.Exit(1)
	}
}

func run(manifestPath, outputPath string, probeLines, minConfidence int) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Files) == 0 {
		return fmt.Errorf("manifest lists no input files")
	}

	out := outputPath
	if out == "" {
		out = m.Output
	}
	if out == "" {
		out = "merged_output.xlsx"
	}

	ctx := context.Background()
	extractor := tabular.NewExtractor(textenc.NewResolver(probeLines, minConfidence))

	sheets := make([]domain.Sheet, 0, len(m.Files))
	failed := 0
	for _, path := range m.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file", "file", path, "error", err)
			failed++
			continue
		}

		name := filepath.Base(path)
		table, err := extractor.Extract(ctx, name, data)
		if err != nil {
			slog.Warn("skipping file", "file", path, "error", err)
			failed++
			continue
		}

		slog.Info("file extracted",
			"file", path,
			"encoding", table.Encoding,
			"delimiter", string(table.Delimiter),
			"rows", len(table.Rows))
		sheets = append(sheets, domain.Sheet{
			Name:       domain.SheetTitle(name),
			SourceName: name,
			Encoding:   table.Encoding,
			Delimiter:  table.Delimiter,
			Rows:       table.Rows,
		})
	}

	if len(sheets) == 0 {
		return fmt.Errorf("no input file could be merged (%d failed)", failed)
	}

	workbook, err := excelize.NewBuilder().Build(ctx, sheets)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	if err := os.WriteFile(out, workbook, 0o644); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	slog.Info("workbook written", "path", out, "sheets", len(sheets), "failed_inputs", failed)
	return nil
}
