package metadata

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kailas-cloud/colsearch/internal/domain"
	"github.com/kailas-cloud/colsearch/internal/domain/document"
)

// LoadError describes why a metadata file could not be loaded.
// Line is 1-based; 0 means the failure is not tied to a line.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d: %v", domain.ErrMetadataLoad, e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", domain.ErrMetadataLoad, e.Path, e.Err)
}

// Unwrap exposes both the domain sentinel and the underlying cause.
func (e *LoadError) Unwrap() []error { return []error{domain.ErrMetadataLoad, e.Err} }

// Table is an immutable id -> text lookup built once at startup.
// Safe for concurrent readers: nothing mutates it after construction.
type Table struct {
	texts map[int64]string
}

// line is the wire shape of one JSON Lines record. Extra fields are ignored.
type line struct {
	ID   json.RawMessage `json:"id"`
	Text *string         `json:"text"`
}

// Load reads a JSON Lines metadata file into a Table.
// Any malformed line, or an id repeated with a different text, fails the whole load.
func Load(path string) (*Table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	return Read(path, f)
}

// Read parses JSON Lines records from r. name is used in error messages.
func Read(name string, r io.Reader) (*Table, error) {
	t := &Table{texts: make(map[int64]string)}
	br := bufio.NewReader(r)

	for lineNo := 1; ; lineNo++ {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, &LoadError{Path: name, Line: lineNo, Err: readErr}
		}

		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			rec, err := parseLine(trimmed)
			if err != nil {
				return nil, &LoadError{Path: name, Line: lineNo, Err: err}
			}
			if err := t.add(rec); err != nil {
				return nil, &LoadError{Path: name, Line: lineNo, Err: err}
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	return t, nil
}

// NewTable builds a Table from records with the same rules as Load.
func NewTable(records []document.Record) (*Table, error) {
	t := &Table{texts: make(map[int64]string, len(records))}
	for i, rec := range records {
		if err := t.add(rec); err != nil {
			return nil, &LoadError{Path: "records", Line: i + 1, Err: err}
		}
	}
	return t, nil
}

func parseLine(data []byte) (document.Record, error) {
	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return document.Record{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(l.ID) == 0 || string(l.ID) == "null" {
		return document.Record{}, errors.New("missing \"id\" field")
	}
	id, err := strconv.ParseInt(string(l.ID), 10, 64)
	if err != nil {
		return document.Record{}, fmt.Errorf("\"id\" must be an integer, got %s", l.ID)
	}
	if l.Text == nil {
		return document.Record{}, errors.New("missing \"text\" field")
	}
	return document.Record{ID: id, Text: *l.Text}, nil
}

func (t *Table) add(rec document.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validate record: %w", err)
	}
	if existing, ok := t.texts[rec.ID]; ok {
		if existing != rec.Text {
			return fmt.Errorf("id %d collides with a different text", rec.ID)
		}
		return nil
	}
	t.texts[rec.ID] = rec.Text
	return nil
}

// Lookup returns the text for id, or domain.ErrDocumentNotFound.
func (t *Table) Lookup(id int64) (string, error) {
	text, ok := t.texts[id]
	if !ok {
		return "", fmt.Errorf("id %d: %w", id, domain.ErrDocumentNotFound)
	}
	return text, nil
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.texts) }
