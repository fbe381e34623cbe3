package document

import (
	"strings"

	"github.com/google/uuid"
)

// Page is the ingestion input unit handed over by the external OCR/PDF
// extraction collaborator: raw page text plus its page number.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Passage is a contiguous chunk of extracted document text with a stable
// identifier. Passages are immutable after creation; the embedding is nil
// until the semantic index has been built.
type Passage struct {
	ID         string
	DocumentID string
	Text       string
	Page       int
	Position   int
	Embedding  []float32
}

// Store holds the chunked text of one document for the lifetime of a run.
type Store struct {
	documentID string
	passages   []Passage
	byID       map[string]int
}

// NewStore chunks the ordered page texts into passages. The chunk unit is a
// non-empty trimmed line, which matches how scanned spec documents are laid
// out (one clause or heading per line after OCR).
func NewStore(documentID string, pages []Page) *Store {
	s := &Store{
		documentID: documentID,
		byID:       make(map[string]int),
	}
	pos := 0
	for _, pg := range pages {
		for _, line := range strings.Split(pg.Text, "\n") {
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			p := Passage{
				ID:         uuid.New().String(),
				DocumentID: documentID,
				Text:       text,
				Page:       pg.Number,
				Position:   pos,
			}
			s.byID[p.ID] = len(s.passages)
			s.passages = append(s.passages, p)
			pos++
		}
	}
	return s
}

// DocumentID returns the owning document's identifier.
func (s *Store) DocumentID() string { return s.documentID }

// Passages returns all passages in document order.
func (s *Store) Passages() []Passage { return s.passages }

// Len returns the number of passages.
func (s *Store) Len() int { return len(s.passages) }

// Passage looks up a passage by ID.
func (s *Store) Passage(id string) (Passage, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Passage{}, false
	}
	return s.passages[i], true
}

// Context joins the passage text with up to window neighbouring passages on
// each side, giving extraction rules a focused span around a hit.
func (s *Store) Context(id string, window int) string {
	i, ok := s.byID[id]
	if !ok {
		return ""
	}
	lo := i - window
	if lo < 0 {
		lo = 0
	}
	hi := i + window + 1
	if hi > len(s.passages) {
		hi = len(s.passages)
	}
	parts := make([]string, 0, hi-lo)
	for _, p := range s.passages[lo:hi] {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, " ")
}

// Preceding returns passages strictly before the given one, nearest first.
// Used by heading extraction to scan backwards.
func (s *Store) Preceding(id string) []Passage {
	i, ok := s.byID[id]
	if !ok {
		return nil
	}
	out := make([]Passage, 0, i)
	for j := i - 1; j >= 0; j-- {
		out = append(out, s.passages[j])
	}
	return out
}

// SetEmbedding attaches an embedding to a passage. Only the semantic index
// build step calls this, before any concurrent readers exist.
func (s *Store) SetEmbedding(id string, vec []float32) {
	if i, ok := s.byID[id]; ok {
		s.passages[i].Embedding = vec
	}
}
