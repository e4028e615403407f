package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// MaxPDFPages limits the number of pages read from one document
const MaxPDFPages = 100

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}
	if totalPages > MaxPDFPages {
		return "", fmt.Errorf("PDF has too many pages (%d), max allowed is %d", totalPages, MaxPDFPages)
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		// pages that fail to decode are skipped
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if cleaned := strings.TrimSpace(collapseSpaces(text)); cleaned != "" {
			b.WriteString(cleaned)
			b.WriteByte('\n')
		}

		if b.Len() > MaxExtractedTextSize {
			break
		}
	}

	return cleanText(b.String()), nil
}

// collapseSpaces squeezes horizontal whitespace runs to one space, keeping newlines
func collapseSpaces(text string) string {
	var b strings.Builder
	lastWasSpace := false

	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune('\n')
			lastWasSpace = false
		case unicode.IsSpace(r):
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			b.WriteRune(r)
			lastWasSpace = false
		}
	}
	return b.String()
}
