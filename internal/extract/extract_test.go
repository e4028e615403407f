package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		filename string
		want     FileKind
	}{
		{"notes.txt", KindText},
		{"README", KindText},
		{"data.CSV", KindCSV},
		{"paper.pdf", KindPDF},
		{"letter.docx", KindDOCX},
		{"sheet.xlsx", KindSpreadsheet},
		{"legacy.xls", KindSpreadsheet},
		{"doc.md", KindMarkdown},
		{"archive.tar.gz", KindText},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := KindOf(tt.filename); got != tt.want {
				t.Errorf("KindOf(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestText_Plain(t *testing.T) {
	got, err := Text("notes.txt", []byte("hello\nworld"))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "hello\nworld" {
		t.Errorf("Text() = %q", got)
	}

	got, err = Text("bad.txt", []byte{'o', 'k', 0xff, '!'})
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "ok!" {
		t.Errorf("invalid UTF-8 should be dropped, got %q", got)
	}
}

func TestText_CSV(t *testing.T) {
	got, err := Text("people.csv", []byte("name,age\nalice,30\nbob,7\n"))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	want := " name age\nalice  30\n  bob   7"
	if got != want {
		t.Errorf("Text() =\n%s\nwant\n%s", got, want)
	}
}

func TestText_Markdown(t *testing.T) {
	src := "# Title\n\nSome **bold** text.\n\n- one\n- two\n\n```\ncode line\n```\n"

	got, err := Text("doc.md", []byte(src))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	for _, want := range []string{"Title", "Some bold text.", "one", "two", "code line"} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown text missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "**") || strings.Contains(got, "#") {
		t.Errorf("markup should be stripped:\n%s", got)
	}
}

func TestText_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
<w:p><w:r><w:t>Second</w:t></w:r></w:p>
</w:body>
</w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := Text("letter.docx", buf.Bytes())
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "First paragraph\nSecond" {
		t.Errorf("Text() = %q", got)
	}
}

func TestText_DOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.Create("other.xml")
	zw.Close()

	if _, err := Text("letter.docx", buf.Bytes()); err == nil {
		t.Error("expected error for DOCX without word/document.xml")
	}
}

func TestText_Spreadsheet(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "city")
	f.SetCellValue("Sheet1", "B1", "pop")
	f.SetCellValue("Sheet1", "A2", "Oslo")
	f.SetCellValue("Sheet1", "B2", 700000)

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	got, err := Text("cities.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	want := "city    pop\nOslo 700000"
	if got != want {
		t.Errorf("Text() =\n%s\nwant\n%s", got, want)
	}
}

func TestText_InvalidPDF(t *testing.T) {
	if _, err := Text("broken.pdf", []byte("not a pdf")); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestLimitSize(t *testing.T) {
	long := strings.Repeat("é", MaxExtractedTextSize)
	got := limitSize(long)
	if !strings.HasSuffix(got, "[Content truncated]") {
		t.Error("oversized text should be truncated")
	}
	if !strings.HasPrefix(got, "é") || strings.ContainsRune(got, '\uFFFD') {
		t.Error("truncation should not split a rune")
	}
}
