package catalog

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

func parseFeed(body []byte, base *url.URL, limit int) ([]CandidateItem, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing listing feed: %w", err)
	}

	var items []CandidateItem
	for i, item := range feed.Items {
		if i >= limit {
			break
		}
		if entry, ok := parseItem(item, base); ok {
			items = append(items, entry)
		}
	}
	return items, nil
}

func parseItem(item *gofeed.Item, base *url.URL) (CandidateItem, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	link, ok := resolve(base, itemURL)
	if !ok {
		return CandidateItem{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return CandidateItem{}, false
	}

	entry := CandidateItem{Title: title, DetailURL: link}
	if item.PublishedParsed != nil {
		t := *item.PublishedParsed
		entry.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := *item.UpdatedParsed
		entry.PublishedAt = &t
	}
	return entry, true
}
