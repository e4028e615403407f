package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

func docxText(data []byte) (string, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("invalid DOCX: not a valid ZIP file: %w", err)
	}

	for _, file := range zipReader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read document.xml: %w", err)
		}

		return cleanText(paragraphsFromXML(content)), nil
	}

	return "", fmt.Errorf("invalid DOCX: missing word/document.xml")
}

// paragraphsFromXML joins the text runs of each w:p element, one paragraph per line
func paragraphsFromXML(content []byte) string {
	var out strings.Builder
	var paragraph strings.Builder
	inParagraph := false

	decoder := xml.NewDecoder(bytes.NewReader(content))
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" && t.Name.Space == wordprocessingNS {
				inParagraph = true
				paragraph.Reset()
			}
		case xml.EndElement:
			if t.Name.Local == "p" && t.Name.Space == wordprocessingNS {
				out.WriteString(paragraph.String())
				out.WriteByte('\n')
				inParagraph = false
			}
		case xml.CharData:
			if inParagraph {
				paragraph.Write(t)
			}
		}
	}

	return out.String()
}
