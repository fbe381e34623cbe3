package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadPages reads the output of the external text-extraction collaborator.
// Two formats are accepted:
//   - .json: an array of {"page_number": n, "text": "..."} objects
//   - anything else: plain text, treated as a single page
func LoadPages(path string) ([]Page, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var pages []Page
		if err := json.Unmarshal(raw, &pages); err != nil {
			return nil, fmt.Errorf("decode pages: %w", err)
		}
		return pages, nil
	}
	return []Page{{Number: 1, Text: string(raw)}}, nil
}
