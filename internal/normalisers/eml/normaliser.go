// Package eml extracts text from RFC 5322 email messages.
package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/normalisers/html"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// maxPartDepth bounds nested multipart recursion.
const maxPartDepth = 8

// Normaliser handles EML (email) documents.
type Normaliser struct{}

// New creates a new EML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// FileTypes returns the file types this normaliser handles.
func (n *Normaliser) FileTypes() []string {
	return []string{"eml"}
}

// Extract renders the From, To, Date and Subject headers followed by the
// body. Plain text parts are preferred over HTML; attachments are skipped.
func (n *Normaliser) Extract(ctx context.Context, data []byte, _ string) (domain.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("eml: %w: %v", domain.ErrInvalidInput, err)
	}

	body, err := extractBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body, 0)
	if err != nil {
		return domain.ExtractedText{}, err
	}

	var content strings.Builder
	for _, h := range []string{"From", "To", "Date", "Subject"} {
		if v := decodeHeader(msg.Header.Get(h)); v != "" {
			fmt.Fprintf(&content, "%s: %s\n", h, v)
		}
	}
	content.WriteString("\n")
	content.WriteString(body)

	return domain.ExtractedText{Text: strings.TrimSpace(content.String()), PageCount: 1}, nil
}

// Subject returns the decoded Subject header, or "" if data is not a message.
func Subject(data []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return decodeHeader(msg.Header.Get("Subject"))
}

// decodeHeader decodes RFC 2047 encoded words.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

func extractBody(contentType, encoding string, r io.Reader, depth int) (string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxPartDepth {
			return "", nil
		}
		return extractMultipart(r, params["boundary"], depth+1)
	}

	raw, err := io.ReadAll(decodeTransfer(r, encoding))
	if err != nil {
		return "", fmt.Errorf("eml: %w: reading body", domain.ErrInvalidInput)
	}

	switch mediaType {
	case "text/html":
		return html.StripHTML(string(raw)), nil
	case "text/plain":
		return strings.ReplaceAll(string(raw), "\r\n", "\n"), nil
	default:
		return "", nil
	}
}

func extractMultipart(r io.Reader, boundary string, depth int) (string, error) {
	if boundary == "" {
		return "", nil
	}

	mr := multipart.NewReader(r, boundary)
	var textParts, htmlParts []string

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}

		if disp, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disp == "attachment" {
			part.Close()
			continue
		}

		partType := part.Header.Get("Content-Type")
		mediaType, _, parseErr := mime.ParseMediaType(partType)
		if parseErr != nil {
			mediaType = "text/plain"
		}

		// multipart.Part already undoes quoted-printable.
		text, err := extractBody(partType, part.Header.Get("Content-Transfer-Encoding"), part, depth)
		part.Close()
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}

		if mediaType == "text/html" {
			htmlParts = append(htmlParts, text)
		} else {
			textParts = append(textParts, text)
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n"), nil
	}
	return strings.Join(htmlParts, "\n"), nil
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}
