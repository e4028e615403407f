// Package extract turns uploaded file bytes into plain text for ingest.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxExtractedTextSize caps the text produced for a single file (1MB)
const MaxExtractedTextSize = 1024 * 1024

// FileKind selects the extractor for a file
type FileKind int

const (
	KindText FileKind = iota
	KindCSV
	KindPDF
	KindDOCX
	KindSpreadsheet
	KindMarkdown
)

func (k FileKind) String() string {
	switch k {
	case KindCSV:
		return "csv"
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindMarkdown:
		return "markdown"
	default:
		return "text"
	}
}

// KindOf picks the extractor from the filename extension; files without one are text
func KindOf(filename string) FileKind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return KindCSV
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".xls", ".xlsx":
		return KindSpreadsheet
	case ".md", ".markdown":
		return KindMarkdown
	default:
		return KindText
	}
}

// Text extracts plain text from a file's content
func Text(filename string, data []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch kind := KindOf(filename); kind {
	case KindCSV:
		text, err = csvText(data)
	case KindPDF:
		text, err = pdfText(data)
	case KindDOCX:
		text, err = docxText(data)
	case KindSpreadsheet:
		text, err = spreadsheetText(data)
	case KindMarkdown:
		text, err = markdownText(data)
	default:
		text = plainText(data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filename, err)
	}

	return limitSize(text), nil
}

// plainText decodes UTF-8, dropping invalid sequences
func plainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func limitSize(text string) string {
	if len(text) <= MaxExtractedTextSize {
		return text
	}
	cut := MaxExtractedTextSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n... [Content truncated]"
}

// cleanText removes NUL bytes and collapses runs of blank lines
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
