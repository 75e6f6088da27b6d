// Package document locates the primary document linked from a bulletin's
// detail page and extracts its text.
package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
	"github.com/TobiSchelling/BulletinWatch/internal/httpclient"
)

// Resolution is the outcome of resolving one detail page. Both fields are
// optional: DocumentURL is nil when no document link was found, Text is nil
// when the document could not be fetched or held no extractable text.
type Resolution struct {
	DocumentURL *string
	Text        *string
}

// Resolver fetches detail pages and their linked documents.
type Resolver struct {
	client     *http.Client
	linkLabels []string
	maxChars   int
}

// NewResolver creates a Resolver.
func NewResolver(client *http.Client, cfg config.Document) *Resolver {
	labels := make([]string, 0, len(cfg.LinkLabels))
	for _, l := range cfg.LinkLabels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			labels = append(labels, l)
		}
	}
	return &Resolver{
		client:     client,
		linkLabels: labels,
		maxChars:   cfg.MaxChars,
	}
}

// Resolve finds the document linked from detailURL and extracts the text of
// at most maxPages leading pages. It never fails: every problem degrades
// to absent fields and is logged.
func (r *Resolver) Resolve(ctx context.Context, detailURL string, maxPages int) Resolution {
	base, err := url.Parse(detailURL)
	if err != nil {
		slog.Warn("invalid detail url", "url", detailURL, "error", err)
		return Resolution{}
	}

	page, _, err := r.get(ctx, detailURL)
	if err != nil {
		slog.Warn("detail page fetch failed", "url", detailURL, "error", err)
		return Resolution{}
	}

	docURL, ok := r.findDocumentLink(page, base)
	if !ok {
		slog.Info("no document link on detail page", "url", detailURL)
		return Resolution{}
	}
	res := Resolution{DocumentURL: &docURL}

	body, contentType, err := r.get(ctx, docURL)
	if err != nil {
		slog.Warn("document fetch failed", "url", docURL, "error", err)
		return res
	}

	text, err := extract(body, contentType, docURL, maxPages)
	if err != nil {
		slog.Warn("text extraction failed", "url", docURL, "error", err)
		return res
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Info("document has no extractable text", "url", docURL)
		return res
	}

	text = truncateRunes(text, r.maxChars)
	res.Text = &text
	return res
}

func (r *Resolver) get(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%s returned %s", target, resp.Status)
	}
	body, err := httpclient.ReadBody(resp)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// findDocumentLink returns the first anchor, in document order, whose path
// ends in .pdf or whose text equals one of the configured labels.
func (r *Resolver) findDocumentLink(page []byte, base *url.URL) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", false
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || ref.String() == "" {
			return true
		}
		if !strings.HasSuffix(strings.ToLower(ref.Path), ".pdf") && !r.isLabel(a.Text()) {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})
	return found, found != ""
}

func (r *Resolver) isLabel(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, l := range r.linkLabels {
		if text == l {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
