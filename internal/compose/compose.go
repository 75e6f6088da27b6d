// Package compose assembles the enriched bulletins of a run into one
// notification batch and renders it as HTML.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/BulletinWatch/internal/catalog"
)

// EnrichedItem is a new bulletin with its resolved document and summary.
// Summary is always set.
type EnrichedItem struct {
	catalog.CandidateItem
	Fingerprint   string
	DocumentURL   *string
	ExtractedText *string
	Summary       string
}

// Link returns the document URL when known, else the detail page.
func (e EnrichedItem) Link() string {
	if e.DocumentURL != nil && *e.DocumentURL != "" {
		return *e.DocumentURL
	}
	return e.DetailURL
}

// Entry is one item of a batch with its in-message anchor.
type Entry struct {
	EnrichedItem
	Anchor string
}

// Batch is the ordered set of items delivered together.
type Batch struct {
	Entries     []Entry
	GeneratedAt time.Time
	ItemCount   int
}

// Compose builds a batch in input order. Anchors are positional: the
// i-th entry (0-based) gets "item-<i+1>".
func Compose(items []EnrichedItem, generatedAt time.Time) Batch {
	entries := make([]Entry, len(items))
	for i, item := range items {
		entries[i] = Entry{EnrichedItem: item, Anchor: fmt.Sprintf("item-%d", i+1)}
	}
	return Batch{Entries: entries, GeneratedAt: generatedAt, ItemCount: len(entries)}
}

// Subject is the notification subject: the title for a single bulletin,
// the count otherwise.
func Subject(b Batch, prefix string) string {
	var subject string
	if b.ItemCount == 1 {
		subject = b.Entries[0].Title
	} else {
		subject = fmt.Sprintf("%d novos boletins", b.ItemCount)
	}
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		subject = prefix + " " + subject
	}
	return subject
}
