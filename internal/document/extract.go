package document

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// extract dispatches on the document type. PDF is recognised by content
// type or magic bytes, since servers often label it octet-stream.
func extract(body []byte, contentType, docURL string, maxPages int) (string, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "" || mt == "application/octet-stream" {
		mt, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}

	switch {
	case mt == "application/pdf" || bytes.HasPrefix(body, pdfMagic):
		return extractPDF(body, maxPages)
	case mt == "text/html" || mt == "application/xhtml+xml":
		return extractHTML(body, docURL)
	case mt == "text/plain":
		return string(body), nil
	default:
		return "", fmt.Errorf("unsupported document type %q", mt)
	}
}

// extractPDF returns the text of the first maxPages pages joined by
// newlines. Pages that fail to decode are skipped.
func extractPDF(body []byte, maxPages int) (text string, err error) {
	// The PDF reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	n := reader.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, t)
	}
	return strings.Join(pages, "\n"), nil
}

func extractHTML(body []byte, docURL string) (string, error) {
	parsedURL, _ := url.Parse(docURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return article.TextContent, nil
}
