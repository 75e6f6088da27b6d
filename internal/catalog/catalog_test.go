package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFetcher(t *testing.T, format string) *Fetcher {
	return NewFetcher(http.DefaultClient, config.Source{Format: format, ItemSelector: "h2"}, saoPaulo(t))
}

const listingHTML = `<html><body>
<div class="tileItem">
  <h2 class="tileHeadline"><a href="/p/12">Boletim Epidemiológico 12</a></h2>
  <span class="documentByLine">publicado 01/03/2024 10h00</span>
</div>
<div class="tileItem">
  <h2 class="tileHeadline"><a href="https://other.example.org/p/11">Boletim Epidemiológico 11</a></h2>
  <span class="documentByLine">atualizado recentemente</span>
</div>
<div class="tileItem">
  <h2>Seção sem link</h2>
</div>
<div class="tileItem">
  <h2><a href="p/10">Boletim Epidemiológico 10</a></h2>
  <p>Publicado em 15/02/2024 09h30</p>
</div>
</body></html>`

func TestFetchCandidates_HTMLListing(t *testing.T) {
	srv := serve(t, "text/html; charset=utf-8", listingHTML)

	items, err := newFetcher(t, FormatAuto).FetchCandidates(context.Background(), srv.URL+"/boletins/", 20)
	require.NoError(t, err)
	require.Len(t, items, 3, "linkless heading is dropped")

	assert.Equal(t, "Boletim Epidemiológico 12", items[0].Title)
	assert.Equal(t, srv.URL+"/p/12", items[0].DetailURL)
	require.NotNil(t, items[0].PublishedAt)
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, saoPaulo(t))
	assert.True(t, items[0].PublishedAt.Equal(want), "got %s", items[0].PublishedAt)

	assert.Equal(t, "https://other.example.org/p/11", items[1].DetailURL)
	assert.Nil(t, items[1].PublishedAt, "unparseable timestamp is absent")

	assert.Equal(t, srv.URL+"/boletins/p/10", items[2].DetailURL)
	require.NotNil(t, items[2].PublishedAt)
	assert.Equal(t, 9, items[2].PublishedAt.Hour())
}

func TestFetchCandidates_RespectsLimit(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&b, `<h2><a href="/p/%d">Item %d</a></h2>`, i, i)
	}
	srv := serve(t, "text/html", b.String())

	items, err := newFetcher(t, FormatHTML).FetchCandidates(context.Background(), srv.URL, 5)
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("Item %d", i+1), item.Title, "source order is kept")
	}
}

func TestFetchCandidates_LimitCountsLinklessElements(t *testing.T) {
	srv := serve(t, "text/html", `<h2>no link</h2><h2><a href="/a">A</a></h2><h2><a href="/b">B</a></h2>`)

	items, err := newFetcher(t, FormatHTML).FetchCandidates(context.Background(), srv.URL, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].Title)
}

func TestFetchCandidates_EmptyListing(t *testing.T) {
	srv := serve(t, "text/html", `<html><body><p>nothing here</p></body></html>`)

	items, err := newFetcher(t, FormatAuto).FetchCandidates(context.Background(), srv.URL, 20)
	require.NoError(t, err)
	assert.Empty(t, items)
}

const listingRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Boletins</title>
<item><title>Boletim 3</title><link>/p/3</link><pubDate>Fri, 01 Mar 2024 13:00:00 GMT</pubDate></item>
<item><title>Boletim 2</title><guid>https://example.org/p/2</guid></item>
<item><title></title><link>https://example.org/p/1</link></item>
</channel></rss>`

func TestFetchCandidates_Feed(t *testing.T) {
	srv := serve(t, "application/rss+xml", listingRSS)

	items, err := newFetcher(t, FormatAuto).FetchCandidates(context.Background(), srv.URL, 20)
	require.NoError(t, err)
	require.Len(t, items, 2, "untitled item is dropped")

	assert.Equal(t, "Boletim 3", items[0].Title)
	assert.Equal(t, srv.URL+"/p/3", items[0].DetailURL)
	require.NotNil(t, items[0].PublishedAt)
	assert.True(t, items[0].PublishedAt.Equal(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)))

	assert.Equal(t, "https://example.org/p/2", items[1].DetailURL, "guid is used when link is missing")
	assert.Nil(t, items[1].PublishedAt)
}

func TestFetchCandidates_FeedSniffedFromBody(t *testing.T) {
	srv := serve(t, "text/plain", listingRSS)

	items, err := newFetcher(t, FormatAuto).FetchCandidates(context.Background(), srv.URL, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Boletim 3", items[0].Title)
}

func TestFetchCandidates_HTTPErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newFetcher(t, FormatAuto).FetchCandidates(context.Background(), srv.URL, 20)
	assert.Error(t, err)
}

func TestFetchCandidates_TransportErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newFetcher(t, FormatAuto).FetchCandidates(context.Background(), url, 20)
	assert.Error(t, err)
}

func TestParsePublished(t *testing.T) {
	loc := saoPaulo(t)
	tests := []struct {
		text string
		want *time.Time
	}{
		{"publicado 01/03/2024 10h00", ptrTime(time.Date(2024, 3, 1, 10, 0, 0, 0, loc))},
		{"Publicado em 31/12/2023 23h59 atualizado", ptrTime(time.Date(2023, 12, 31, 23, 59, 0, 0, loc))},
		{"publicado 32/13/2024 10h00", nil},
		{"sem data", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := parsePublished(tt.text, loc)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, got.Equal(*tt.want), "got %s", got)
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
