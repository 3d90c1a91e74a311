// Package docparse converts uploaded tax documents into plain text for extraction.
package docparse

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNoText            = errors.New("no text extracted from document")
)

// SupportedExtensions lists the file types Parse understands.
var SupportedExtensions = []string{".pdf", ".docx", ".xlsx", ".csv", ".txt"}

// Parser extracts text from document bytes, dispatching on file extension.
type Parser struct{}

// Parse returns the document's text. Empty output is ErrNoText.
func (Parser) Parse(filename string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf":
		text, err = parsePDF(data)
	case ".docx":
		text, err = parseDOCX(data)
	case ".xlsx":
		text, err = parseXLSX(data)
	case ".csv":
		text, err = parseCSV(data)
	case ".txt":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text file is not valid UTF-8: %w", ErrUnsupportedFormat)
		}
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrNoText)
	}
	return text, nil
}

// Supported reports whether filename has a parseable extension.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// parsePDF extracts text page by page; pages are separated by blank lines.
func parsePDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	return strings.Join(docxParagraphs(r.Editable().GetContent()), "\n"), nil
}

// docxParagraphs splits document XML on paragraph ends and strips the markup.
func docxParagraphs(xmlStr string) []string {
	var out []string
	for _, part := range strings.Split(xmlStr, "</w:p>") {
		text := strings.TrimSpace(html.UnescapeString(stripTags(part)))
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// parseXLSX renders every sheet as tab-separated rows under a "Sheet: name" header.
func parseXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "Sheet: %s\n", sheet)
		writeRows(&sb, rows)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func parseCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	var sb strings.Builder
	writeRows(&sb, rows)
	return sb.String(), nil
}

func writeRows(sb *strings.Builder, rows [][]string) {
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			cells = append(cells, strings.TrimSpace(c))
		}
		line := strings.TrimRight(strings.Join(cells, "\t"), "\t")
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
}
