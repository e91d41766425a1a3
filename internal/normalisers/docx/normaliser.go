// Package docx extracts text from Office Open XML word documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// maxDocumentXML bounds the decompressed size of word/document.xml.
const maxDocumentXML = 64 << 20

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// FileTypes returns the file types this normaliser handles.
func (n *Normaliser) FileTypes() []string {
	return []string{"docx"}
}

// Extract returns paragraph text separated by newlines. Explicit page
// breaks become form feeds so that chunks can carry page numbers.
func (n *Normaliser) Extract(ctx context.Context, data []byte, _ string) (domain.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("docx: %w: not a zip archive", domain.ErrInvalidInput)
	}

	body, err := readEntry(reader, "word/document.xml")
	if err != nil {
		return domain.ExtractedText{}, err
	}

	text, err := parseDocumentXML(body)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	return domain.ExtractedText{Text: text, PageCount: domain.CountPages(text)}, nil
}

// Title returns dc:title from docProps/core.xml, or "" when absent.
func Title(data []byte) string {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	content, err := readEntry(reader, "docProps/core.xml")
	if err != nil {
		return ""
	}
	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

func readEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("docx: %w: opening %s", domain.ErrInvalidInput, name)
		}
		defer rc.Close()

		content, err := io.ReadAll(io.LimitReader(rc, maxDocumentXML+1))
		if err != nil {
			return nil, fmt.Errorf("docx: %w: reading %s", domain.ErrInvalidInput, name)
		}
		if len(content) > maxDocumentXML {
			return nil, fmt.Errorf("docx: %w: %s too large", domain.ErrInvalidInput, name)
		}
		return content, nil
	}
	return nil, fmt.Errorf("docx: %w: missing %s", domain.ErrInvalidInput, name)
}

// parseDocumentXML walks the WordprocessingML token stream in document
// order. Namespaces are ignored; only local element names matter.
func parseDocumentXML(content []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var (
		out        strings.Builder
		inText     bool
		paragraphs int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx: %w: malformed document.xml", domain.ErrInvalidInput)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if paragraphs > 0 {
					out.WriteByte('\n')
				}
				paragraphs++
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				if attr(t, "type") == "page" {
					out.WriteRune(domain.PageBreak)
				} else {
					out.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}

	return strings.TrimSpace(out.String()), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
