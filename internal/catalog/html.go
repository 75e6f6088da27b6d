package catalog

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var publishedExpr = regexp.MustCompile(`(?i)publicado\s+(?:em\s+)?(\d{2}/\d{2}/\d{4})\s+(\d{2}h\d{2})`)

const (
	publishedLayout   = "02/01/2006 15h04"
	maxContainerDepth = 3
)

func (f *Fetcher) parseHTML(body []byte, base *url.URL, limit int) ([]CandidateItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing listing html: %w", err)
	}

	var items []CandidateItem
	doc.Find(f.itemSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= limit {
			return false
		}

		a := sel.Find("a[href]").First()
		if a.Length() == 0 && goquery.NodeName(sel) == "a" {
			a = sel
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		link, ok := resolve(base, href)
		if !ok {
			return true
		}

		title := collapse(sel.Text())
		if title == "" {
			return true
		}

		items = append(items, CandidateItem{
			Title:       title,
			DetailURL:   link,
			PublishedAt: f.publishedAt(sel),
		})
		return true
	})

	return items, nil
}

// publishedAt looks for "publicado DD/MM/AAAA HHhMM" in the element that
// follows the item, then in the enclosing containers that hold no other
// item.
func (f *Fetcher) publishedAt(sel *goquery.Selection) *time.Time {
	if t := parsePublished(collapse(sel.Next().Text()), f.location); t != nil {
		return t
	}
	container := sel.Parent()
	for depth := 0; depth < maxContainerDepth && container.Length() > 0; depth++ {
		if container.Find(f.itemSelector).Length() > 1 {
			break
		}
		if t := parsePublished(collapse(container.Text()), f.location); t != nil {
			return t
		}
		container = container.Parent()
	}
	return nil
}

func parsePublished(text string, loc *time.Location) *time.Time {
	m := publishedExpr.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	t, err := time.ParseInLocation(publishedLayout, m[1]+" "+strings.ToLower(m[2]), loc)
	if err != nil {
		return nil
	}
	return &t
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
