// Package catalog fetches the bulletin listing and turns it into candidate
// items, from either an HTML page or an RSS/Atom feed.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
	"github.com/TobiSchelling/BulletinWatch/internal/httpclient"
)

// Listing formats.
const (
	FormatAuto = "auto"
	FormatHTML = "html"
	FormatFeed = "feed"
)

// CandidateItem is one entry of the listing. DetailURL is absolute.
type CandidateItem struct {
	Title       string
	DetailURL   string
	PublishedAt *time.Time
}

// Fetcher downloads and parses the listing.
type Fetcher struct {
	client       *http.Client
	format       string
	itemSelector string
	location     *time.Location
}

// NewFetcher creates a Fetcher using the given client and source settings.
func NewFetcher(client *http.Client, cfg config.Source, loc *time.Location) *Fetcher {
	if loc == nil {
		loc = time.UTC
	}
	selector := cfg.ItemSelector
	if selector == "" {
		selector = "h2"
	}
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = FormatAuto
	}
	return &Fetcher{
		client:       client,
		format:       format,
		itemSelector: selector,
		location:     loc,
	}
}

// FetchCandidates returns at most limit items of the listing in source
// order. Transport failures and non-2xx responses are returned as errors.
func (f *Fetcher) FetchCandidates(ctx context.Context, sourceURL string, limit int) ([]CandidateItem, error) {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parsing source url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building listing request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	body, err := httpclient.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	var items []CandidateItem
	if f.isFeed(resp.Header.Get("Content-Type"), body) {
		items, err = parseFeed(body, base, limit)
	} else {
		items, err = f.parseHTML(body, base, limit)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("listing fetched", "url", sourceURL, "items", len(items))
	return items, nil
}

func (f *Fetcher) isFeed(contentType string, body []byte) bool {
	switch f.format {
	case FormatFeed:
		return true
	case FormatHTML:
		return false
	}
	return looksLikeFeed(contentType, body)
}

func looksLikeFeed(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mt == "text/html", mt == "application/xhtml+xml":
			return false
		case strings.HasSuffix(mt, "xml"), strings.Contains(mt, "rss"), strings.Contains(mt, "atom"):
			return true
		}
	}
	head := bytes.TrimSpace(body)
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(head)
	return bytes.HasPrefix(head, []byte("<?xml")) ||
		bytes.HasPrefix(head, []byte("<rss")) ||
		bytes.HasPrefix(head, []byte("<feed"))
}

// resolve makes href absolute against the listing URL.
func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
