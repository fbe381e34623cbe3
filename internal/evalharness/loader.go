package evalharness

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadItems reads labeled items from a CSV or XLSX file by extension.
// Expected columns: document_id, material, attribute, value.
func LoadItems(path string) ([]Item, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported ground truth format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}

func loadCSV(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var items []Item
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if it, ok := rowToItem(row, cols); ok {
			items = append(items, it)
		}
	}
	return items, nil
}

func loadXLSX(path string) ([]Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheets[0], path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty sheet", path)
	}
	cols, err := columnIndex(rows[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var items []Item
	for _, row := range rows[1:] {
		if it, ok := rowToItem(row, cols); ok {
			items = append(items, it)
		}
	}
	return items, nil
}

type columns struct {
	documentID, material, attribute, value int
}

func columnIndex(header []string) (columns, error) {
	cols := columns{documentID: -1, material: -1, attribute: -1, value: -1}
	for i, h := range header {
		switch Normalize(h) {
		case "document_id", "document":
			cols.documentID = i
		case "material":
			cols.material = i
		case "attribute":
			cols.attribute = i
		case "value":
			cols.value = i
		}
	}
	if cols.documentID < 0 || cols.material < 0 || cols.attribute < 0 || cols.value < 0 {
		return cols, fmt.Errorf("missing required columns (want document_id, material, attribute, value)")
	}
	return cols, nil
}

func rowToItem(row []string, cols columns) (Item, bool) {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	it := Item{
		DocumentID: get(cols.documentID),
		Material:   get(cols.material),
		Attribute:  get(cols.attribute),
		Value:      get(cols.value),
	}
	if it.Material == "" || it.Attribute == "" {
		return Item{}, false
	}
	return it, true
}
