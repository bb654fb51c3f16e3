package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// loadCSV yields one section per data row, rendered as "header: value" lines.
func loadCSV(ctx context.Context, path string) ([]Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var sections []Section
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(sections)+1, err)
		}
		sections = append(sections, Section{Text: rowText(header, row)})
	}
	return sections, nil
}

func rowText(header, row []string) string {
	lines := make([]string, 0, len(row))
	for i, v := range row {
		key := fmt.Sprintf("column%d", i+1)
		if i < len(header) && header[i] != "" {
			key = header[i]
		}
		lines = append(lines, key+": "+strings.TrimSpace(v))
	}
	return strings.Join(lines, "\n")
}
