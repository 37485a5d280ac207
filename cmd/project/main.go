// Command project renders a collected JSONL journal as CSV offline. Unlike
// the collector's primary CSV, the column list is chosen at projection time,
// so fields that were dropped during capture are recoverable here.
//
// Usage:
//
//	go run ./cmd/project -journal blitzortung_data.jsonl -out strikes.csv \
//	  -columns time,lat,lon,sig
//
// An empty -columns projects the union of all fields in the journal.
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/couchcryptid/blitz-stream-collector/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	journalPath := flag.String("journal", "", "path to the JSONL journal")
	outPath := flag.String("out", "", "output CSV path, - for stdout")
	columns := flag.String("columns", "", "comma-separated columns, empty for all fields")
	flag.Parse()

	if *journalPath == "" || *outPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -journal, -out")
	}

	records, skipped, err := readJournal(*journalPath)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Printf("skipped %d corrupt journal lines", skipped)
	}

	header := buildHeader(*columns, records)

	out := os.Stdout
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", *outPath, err)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = rec.Value(col)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	log.Printf("projected %d records, %d columns", len(records), len(header))
	return nil
}

func readJournal(path string) ([]domain.Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var records []domain.Record
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return records, skipped, nil
}

// buildHeader resolves the projection columns: an explicit list, or the
// sorted union of every field in the journal. The capture columns always
// lead.
func buildHeader(columns string, records []domain.Record) []string {
	header := []string{domain.FieldTimestamp, domain.FieldDataType}
	seen := map[string]bool{domain.FieldTimestamp: true, domain.FieldDataType: true}

	if columns != "" {
		for _, c := range strings.Split(columns, ",") {
			c = strings.TrimSpace(c)
			if c != "" && !seen[c] {
				seen[c] = true
				header = append(header, c)
			}
		}
		return header
	}

	fields := make(map[string]bool)
	for _, rec := range records {
		for _, name := range rec.FieldNames() {
			if !seen[name] {
				fields[name] = true
			}
		}
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(header, names...)
}
