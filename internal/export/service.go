package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/specsift/specsift/internal/refine"
	"github.com/specsift/specsift/internal/repository"
)

// Service is a tiny façade over the run repository that produces XLSX bytes
// for exports.
type Service struct {
	runs   repository.RunRepository
	logger *slog.Logger
}

func NewService(runs repository.RunRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

// ExportRecordsXLSX returns an XLSX workbook (as bytes) with one row per
// (material, attribute) for the given run.
func (s *Service) ExportRecordsXLSX(ctx context.Context, runID string) ([]byte, error) {
	start := time.Now()
	recs, err := s.runs.ListRecords(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	buf, rows, err := writeWorkbook(recs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"run_id", runID,
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

// ExportDocumentsXLSX exports the stored records for several documents into
// one workbook, in the given document order.
func (s *Service) ExportDocumentsXLSX(ctx context.Context, documentIDs []string) ([]byte, error) {
	start := time.Now()
	seen := make(map[string]struct{}, len(documentIDs))
	var recs []refine.Record
	for _, docID := range documentIDs {
		if _, ok := seen[docID]; ok {
			continue
		}
		seen[docID] = struct{}{}
		docRecs, err := s.runs.ListRecordsByDocument(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("query records for %s: %w", docID, err)
		}
		recs = append(recs, docRecs...)
	}
	buf, rows, err := writeWorkbook(recs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"documents", len(seen),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

func writeWorkbook(recs []refine.Record) ([]byte, int, error) {
	f := excelize.NewFile()
	const sheet = "Materials"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, 0, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Document",
		"Material",
		"Attribute",
		"Value",
		"Provider",
		"Confidence",
		"Degraded",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	rows := 0
	for _, r := range recs {
		attrs := make([]string, 0, len(r.Attributes))
		for k := range r.Attributes {
			attrs = append(attrs, k)
		}
		sort.Strings(attrs)

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		for _, attr := range attrs {
			write(1, r.DocumentID)
			write(2, r.Material)
			write(3, attr)
			write(4, truncate(r.Attributes[attr], 200))
			write(5, r.Provider)
			write(6, fmt.Sprintf("%.2f", r.Confidence))
			write(7, r.Degraded)
			row++
			rows++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 24) // document
	_ = f.SetColWidth(sheet, "B", "B", 24) // material
	_ = f.SetColWidth(sheet, "C", "C", 18) // attribute
	_ = f.SetColWidth(sheet, "D", "D", 60) // value
	_ = f.SetColWidth(sheet, "E", "G", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), rows, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
