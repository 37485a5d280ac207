package sink_test

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/blitz-stream-collector/internal/adapter/sink"
	"github.com/couchcryptid/blitz-stream-collector/internal/domain"
)

var snapTime = time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)

func newTestSink(t *testing.T, gzipSnap bool) (*sink.Sink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strikes.csv")
	s, err := sink.New(path, []string{"lat", "lon"}, gzipSnap,
		clockwork.NewFakeClockAt(snapTime), discardLogger())
	require.NoError(t, err)
	return s, path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strikeRecord(sec int, fields map[string]any) domain.Record {
	return domain.Record{
		Timestamp: time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC),
		DataType:  domain.DataTypeJSON,
		Fields:    fields,
	}
}

func readCSV(t *testing.T, r io.Reader) [][]string {
	t.Helper()
	rows, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return rows
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	return readCSV(t, f)
}

func TestAppend_WritesCSVAndJournal(t *testing.T) {
	s, path := newTestSink(t, false)
	defer s.Close()

	require.NoError(t, s.Append(strikeRecord(0, map[string]any{"lat": "51.5", "lon": "-0.1", "sig": "extra"})))
	require.NoError(t, s.Append(strikeRecord(1, map[string]any{"lat": "48.8"})))

	rows := readCSVFile(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "data_type", "lat", "lon"}, rows[0])
	assert.Equal(t, []string{"2026-03-01T12:00:00Z", "json", "51.5", "-0.1"}, rows[1])
	assert.Equal(t, []string{"2026-03-01T12:00:01Z", "json", "48.8", ""}, rows[2])

	journal, err := os.ReadFile(strings.TrimSuffix(path, ".csv") + ".jsonl")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(journal), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"sig":"extra"`)
}

func TestNew_ReopenDoesNotDuplicateHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strikes.csv")
	clk := clockwork.NewFakeClockAt(snapTime)

	s, err := sink.New(path, []string{"lat"}, false, clk, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Append(strikeRecord(0, map[string]any{"lat": "1"})))
	require.NoError(t, s.Close())

	s, err = sink.New(path, []string{"lat"}, false, clk, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Append(strikeRecord(1, map[string]any{"lat": "2"})))
	require.NoError(t, s.Close())

	rows := readCSVFile(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "data_type", "lat"}, rows[0])
}

func TestAppend_AfterCloseIsStorageError(t *testing.T) {
	s, _ := newTestSink(t, false)
	require.NoError(t, s.Close())

	err := s.Append(strikeRecord(0, map[string]any{"lat": "1"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, sink.ErrStorage)
}

func TestSnapshot_ProjectsUnionOfFields(t *testing.T) {
	s, path := newTestSink(t, false)
	defer s.Close()

	require.NoError(t, s.Append(strikeRecord(0, map[string]any{"lat": "51.5", "region": "1"})))
	require.NoError(t, s.Append(strikeRecord(1, map[string]any{"lon": "-0.1", "alt": "12"})))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "strikes_20260301_150405.csv"), snap)

	rows := readCSVFile(t, snap)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "data_type", "alt", "lat", "lon", "region"}, rows[0])
	assert.Equal(t, []string{"2026-03-01T12:00:00Z", "json", "", "51.5", "", "1"}, rows[1])
	assert.Equal(t, []string{"2026-03-01T12:00:01Z", "json", "12", "", "-0.1", ""}, rows[2])
}

func TestSnapshot_Gzip(t *testing.T) {
	s, path := newTestSink(t, true)
	defer s.Close()

	require.NoError(t, s.Append(strikeRecord(0, map[string]any{"lat": "51.5"})))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "strikes_20260301_150405.csv.gz"), snap)

	f, err := os.Open(snap)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	rows := readCSV(t, gz)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"timestamp", "data_type", "lat"}, rows[0])
}

func TestSnapshot_EmptyJournal(t *testing.T) {
	s, _ := newTestSink(t, false)
	defer s.Close()

	snap, err := s.Snapshot()
	require.NoError(t, err)

	rows := readCSVFile(t, snap)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"timestamp", "data_type"}, rows[0])
}

func TestSnapshot_SkipsCorruptJournalLines(t *testing.T) {
	s, path := newTestSink(t, false)
	defer s.Close()

	require.NoError(t, s.Append(strikeRecord(0, map[string]any{"lat": "51.5"})))

	journalPath := strings.TrimSuffix(path, ".csv") + ".jsonl"
	f, err := os.OpenFile(journalPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Append(strikeRecord(1, map[string]any{"lat": "48.8"})))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	rows := readCSVFile(t, snap)
	require.Len(t, rows, 3)
}
