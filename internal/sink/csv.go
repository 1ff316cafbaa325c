package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
)

// csvFile wraps an opened CSV file with its writer and cached headers.
// All writes must respect the header order to keep column consistency.
type csvFile struct {
	file    *os.File
	writer  *csv.Writer
	headers []string
}

// CSVSink persists progress events into one CSV file per job
// (<output_dir>/<job_id>.csv). The first time a job is seen the sink writes
// a header row with all keys of that event, sorted alphabetically, and
// appends every subsequent row in the same column order. Keys missing from
// a later event are written as empty cells; unknown keys are dropped.
type CSVSink struct {
	outputDir string
	mu        sync.Mutex
	files     map[string]*csvFile // keyed by job id
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NewCSVSink initialises a sink that writes CSV files under the given
// directory, creating the directory tree if it doesn't already exist.
func NewCSVSink(outputDir string) (*CSVSink, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv output directory: %w", err)
	}

	return &CSVSink{
		outputDir: outputDir,
		files:     make(map[string]*csvFile),
	}, nil
}

// Write appends the provided event as a CSV row.
func (s *CSVSink) Write(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, _ := evt["job_id"].(string)
	if jobID == "" {
		jobID = "unknown"
	}

	cf, ok := s.files[jobID]
	if !ok {
		fp := filepath.Join(s.outputDir, fileName(jobID))

		// A file left by a previous run keeps its header.
		_, err := os.Stat(fp)
		exists := !os.IsNotExist(err)

		f, err := os.OpenFile(fp, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open csv file %s: %w", fp, err)
		}

		headers := extractHeaders(evt)
		if exists {
			if prev, err := csv.NewReader(f).Read(); err == nil {
				headers = prev
			}
		}

		w := csv.NewWriter(f)
		if !exists {
			if err := w.Write(headers); err != nil {
				f.Close()
				return fmt.Errorf("failed to write csv header for %s: %w", fp, err)
			}
			w.Flush()
			if err := w.Error(); err != nil {
				f.Close()
				return fmt.Errorf("failed to flush csv header for %s: %w", fp, err)
			}
		}

		cf = &csvFile{file: f, writer: w, headers: headers}
		s.files[jobID] = cf
	}

	row := make([]string, len(cf.headers))
	for i, key := range cf.headers {
		if v, ok := evt[key]; ok && v != nil {
			row[i] = fmt.Sprint(v)
		}
	}

	if err := cf.writer.Write(row); err != nil {
		return err
	}
	cf.writer.Flush()
	return cf.writer.Error()
}

// Close flushes and closes every open file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for key, cf := range s.files {
		cf.writer.Flush()
		if err := cf.writer.Error(); err != nil {
			errs = append(errs, err)
		}
		if err := cf.file.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.files, key)
	}
	return errors.Join(errs...)
}

func fileName(jobID string) string {
	return unsafeFileChars.ReplaceAllString(jobID, "_") + ".csv"
}

// extractHeaders returns a deterministic, alphabetically-sorted slice of map
// keys which will be used as CSV columns.
func extractHeaders(evt Event) []string {
	headers := make([]string, 0, len(evt))
	for k := range evt {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}
