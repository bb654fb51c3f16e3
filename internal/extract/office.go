package extract

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

var (
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:br/>|<w:cr/>`)
	tabTag       = regexp.MustCompile(`<w:tab/>`)
	xmlTag       = regexp.MustCompile(`<[^>]*>`)
)

func loadDocx(_ context.Context, path string) ([]Section, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading docx: %w", err)
	}
	defer doc.Close()

	return []Section{{Text: docxText(doc.Editable().GetContent())}}, nil
}

// docxText reduces WordprocessingML to plain text, one paragraph per line.
func docxText(xml string) string {
	s := paragraphEnd.ReplaceAllString(xml, "\n")
	s = tabTag.ReplaceAllString(s, "\t")
	s = html.UnescapeString(xmlTag.ReplaceAllString(s, ""))

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimRight(l, " \t"))
		}
	}
	return strings.Join(out, "\n")
}

// loadXLSX yields one section per sheet. The first row of a sheet is its
// header and every following row becomes a block of "header: value" lines.
func loadXLSX(ctx context.Context, path string) ([]Section, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var sections []Section
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if len(rows) < 2 {
			continue
		}

		blocks := []string{"sheet: " + sheet}
		for _, row := range rows[1:] {
			if strings.TrimSpace(strings.Join(row, "")) == "" {
				continue
			}
			blocks = append(blocks, rowText(rows[0], row))
		}
		if len(blocks) > 1 {
			sections = append(sections, Section{Text: strings.Join(blocks, "\n\n")})
		}
	}
	return sections, nil
}
