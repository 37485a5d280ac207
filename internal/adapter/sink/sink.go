// Package sink persists normalized records.
//
// Two artifacts are written continuously: a primary CSV with a column set
// fixed at creation, and a JSONL journal holding every record in full. The
// journal is the source of truth; the CSV is a readable projection. At
// shutdown (or on demand) Snapshot re-reads the journal and writes an
// immutable timestamp-named CSV projecting the union of all fields seen, so
// the primary header never mutates mid-run and nothing is lost to it.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"encoding/csv"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/blitz-stream-collector/internal/domain"
)

// ErrStorage classifies all sink write failures; match with errors.Is. The
// caller logs and drops the record rather than stalling the receive loop.
var ErrStorage = errors.New("sink: storage failure")

// maxJournalLine bounds journal lines read back during snapshots. Feed
// frames top out in the tens of kilobytes; 16 MiB leaves a wide margin.
const maxJournalLine = 16 << 20

// Sink is the append-only record writer. Single-writer: the receive loop is
// the only caller, so no locking is needed and storage order is wire order.
type Sink struct {
	csvPath     string
	journalPath string
	header      []string
	gzipSnap    bool
	clock       clockwork.Clock
	logger      *slog.Logger

	csvFile *os.File
	csvW    *csv.Writer
	journal *os.File
}

// New opens (or creates) the primary CSV and its journal. The CSV header is
// timestamp, data_type, then the configured columns; it is written only when
// the file is empty so reopening an existing output appends cleanly.
func New(path string, columns []string, gzipSnapshot bool, clk clockwork.Clock, logger *slog.Logger) (*Sink, error) {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	s := &Sink{
		csvPath:     path,
		journalPath: strings.TrimSuffix(path, filepath.Ext(path)) + ".jsonl",
		header:      buildHeader(columns),
		gzipSnap:    gzipSnapshot,
		clock:       clk,
		logger:      logger,
	}

	csvFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, path, err)
	}
	s.csvFile = csvFile
	s.csvW = csv.NewWriter(csvFile)

	info, err := csvFile.Stat()
	if err == nil && info.Size() == 0 {
		if err := s.writeRow(s.csvW, s.header); err != nil {
			csvFile.Close()
			return nil, err
		}
	}

	journal, err := os.OpenFile(s.journalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		csvFile.Close()
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, s.journalPath, err)
	}
	s.journal = journal

	return s, nil
}

// Append durably writes one record: the full record to the journal, its
// projection to the CSV. Both writes are flushed before returning so a crash
// loses at most the record being written.
func (s *Sink) Append(rec domain.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %w", ErrStorage, err)
	}
	line = append(line, '\n')
	if _, err := s.journal.Write(line); err != nil {
		return fmt.Errorf("%w: journal write: %w", ErrStorage, err)
	}

	row := make([]string, len(s.header))
	for i, col := range s.header {
		row[i] = rec.Value(col)
	}
	return s.writeRow(s.csvW, row)
}

// Snapshot writes an immutable copy of every record seen so far, named with
// the current capture time, projecting the union of all fields. Safe to call
// repeatedly; each call produces a new file.
func (s *Sink) Snapshot() (string, error) {
	records, err := s.readJournal()
	if err != nil {
		return "", err
	}

	path := s.snapshotPath()
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrStorage, path, err)
	}

	var out io.Writer = f
	var gz *gzip.Writer
	if s.gzipSnap {
		gz = gzip.NewWriter(f)
		out = gz
	}

	if err := s.writeSnapshot(out, records); err != nil {
		f.Close()
		return "", err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: close gzip: %w", ErrStorage, err)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", ErrStorage, path, err)
	}
	return path, nil
}

// Close flushes and closes both files. Appends after Close fail with
// ErrStorage.
func (s *Sink) Close() error {
	s.csvW.Flush()
	var errs []error
	if err := s.csvW.Error(); err != nil {
		errs = append(errs, err)
	}
	if err := s.csvFile.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.journal.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Sink) writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return fmt.Errorf("%w: csv write: %w", ErrStorage, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: csv flush: %w", ErrStorage, err)
	}
	return nil
}

func (s *Sink) writeSnapshot(out io.Writer, records []domain.Record) error {
	header := unionHeader(records)
	w := csv.NewWriter(out)
	if err := s.writeRow(w, header); err != nil {
		return err
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = rec.Value(col)
		}
		if err := s.writeRow(w, row); err != nil {
			return err
		}
	}
	return nil
}

// readJournal loads all records appended so far. Corrupt lines are logged
// and skipped; a missing journal means no records yet.
func (s *Sink) readJournal() ([]domain.Record, error) {
	f, err := os.Open(s.journalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, s.journalPath, err)
	}
	defer f.Close()

	var records []domain.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxJournalLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Warn("skipping corrupt journal line", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, s.journalPath, err)
	}
	return records, nil
}

func (s *Sink) snapshotPath() string {
	ext := filepath.Ext(s.csvPath)
	if ext == "" {
		ext = ".csv"
	}
	base := strings.TrimSuffix(s.csvPath, ext)
	path := base + "_" + s.clock.Now().Format("20060102_150405") + ext
	if s.gzipSnap {
		path += ".gz"
	}
	return path
}

// buildHeader prefixes the synthetic columns and drops duplicates from the
// configured list.
func buildHeader(columns []string) []string {
	header := []string{domain.FieldTimestamp, domain.FieldDataType}
	seen := map[string]bool{domain.FieldTimestamp: true, domain.FieldDataType: true}
	for _, c := range columns {
		if !seen[c] {
			seen[c] = true
			header = append(header, c)
		}
	}
	return header
}

// unionHeader builds the snapshot column set: the synthetic columns, then
// every field seen in any record, sorted.
func unionHeader(records []domain.Record) []string {
	fields := make(map[string]bool)
	for _, rec := range records {
		for _, name := range rec.FieldNames() {
			fields[name] = true
		}
	}
	delete(fields, domain.FieldTimestamp)
	delete(fields, domain.FieldDataType)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{domain.FieldTimestamp, domain.FieldDataType}, names...)
}
