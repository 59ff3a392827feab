package fileutils

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadDelimited reads a header line and all records from r. Fields are
// trimmed and a leading UTF-8 BOM is dropped. Short records are padded with
// empty fields so every record has len(header) fields.
func ReadDelimited(r io.Reader, comma rune) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("read header: empty input")
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	header = trimAll(header)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read record %d: %w", len(records), err)
		}
		rec = trimAll(rec)
		if len(rec) > len(header) {
			return nil, nil, fmt.Errorf("record %d has %d fields, header has %d", len(records), len(rec), len(header))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		records = append(records, rec)
	}
	return header, records, nil
}

// WriteCSVFileAtomic renders header and records as comma-separated values and
// commits them to path.
func WriteCSVFileAtomic(path string, header []string, records [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	if err := WriteFileAtomicSameDir(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
