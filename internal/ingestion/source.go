// Package ingestion implements the document ingestion pipeline. It reads
// raw records from a source (a CSV file with a content column, or a
// directory of plain-text files), optionally chunks them, embeds each
// record, and inserts the results into the document store. The pipeline is
// invoked by the `docqa ingest` CLI command and at `docqa serve` startup,
// and re-runs under a filesystem watcher for continuous ingestion.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Record is one raw ingestion record before chunking and embedding.
type Record struct {
	// Content is the raw document text.
	Content string

	// Source is the origin of the record (file path, possibly with a row
	// or chunk suffix).
	Source string
}

// Source supplies ingestion records. Read must be safe to call repeatedly:
// the watcher re-reads the source on every filesystem change and relies on
// content-hash dedupe downstream.
type Source interface {
	// Read returns all records currently present in the source.
	Read(ctx context.Context) ([]Record, error)

	// Name returns a human-readable label for logging.
	Name() string
}

// NewSource selects a Source implementation for the given path: a .csv file
// becomes a CSVSource, a directory becomes a DirSource, and any other file
// is read whole as a single plain-text record.
func NewSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return &DirSource{Path: path}, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return &CSVSource{Path: path}, nil
	}
	return &FileSource{Path: path}, nil
}

// CSVSource reads records from a CSV file with a header row containing a
// "content" column. This is the corpus format produced by most export
// tooling: one document per row, quoted.
type CSVSource struct {
	// Path is the CSV file path.
	Path string
}

// Name returns the file path.
func (s *CSVSource) Name() string { return s.Path }

// Read parses the CSV file and returns one record per non-empty row.
// Rows whose content column is empty after trimming are skipped rather
// than rejected, so a trailing blank line never fails an ingest run.
func (s *CSVSource) Read(ctx context.Context) ([]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open %s: %w", s.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("ingestion: read header of %s: %w", s.Path, err)
	}

	contentCol := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "content") {
			contentCol = i
			break
		}
	}
	if contentCol < 0 {
		return nil, fmt.Errorf("ingestion: %s has no content column (header: %s)", s.Path, strings.Join(header, ","))
	}

	var records []Record
	row := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingestion: read row %d of %s: %w", row, s.Path, err)
		}
		row++
		if contentCol >= len(fields) {
			continue
		}
		content := strings.TrimSpace(fields[contentCol])
		if content == "" {
			continue
		}
		records = append(records, Record{
			Content: content,
			Source:  fmt.Sprintf("%s#%d", s.Path, row-1),
		})
	}

	return records, nil
}

// DirSource reads every .txt file under a directory (non-recursive),
// one document per file, in sorted filename order so ingestion order is
// deterministic.
type DirSource struct {
	// Path is the directory to scan.
	Path string
}

// Name returns the directory path.
func (s *DirSource) Name() string { return s.Path }

// Read returns one record per .txt file with non-empty content.
func (s *DirSource) Read(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read dir %s: %w", s.Path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.Path, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ingestion: read %s: %w", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		records = append(records, Record{Content: content, Source: path})
	}

	return records, nil
}

// FileSource reads a single plain-text file as one record.
type FileSource struct {
	// Path is the file path.
	Path string
}

// Name returns the file path.
func (s *FileSource) Name() string { return s.Path }

// Read returns the whole file as a single record, or no records when the
// file is empty after trimming.
func (s *FileSource) Read(_ context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", s.Path, err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}
	return []Record{{Content: content, Source: s.Path}}, nil
}
