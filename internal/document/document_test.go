package document

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
)

// buildPDF writes a minimal PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var objs []string
	n := len(pages)
	// 1: catalog, 2: pages, 3: font, then a page and a content object per page.
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

type site struct {
	detail      string
	docType     string
	docBody     []byte
	docStatus   int
	detailCalls atomic.Int32
	docCalls    atomic.Int32
}

func (s *site) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		s.detailCalls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, s.detail)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		s.docCalls.Add(1)
		if s.docStatus != 0 {
			w.WriteHeader(s.docStatus)
			return
		}
		w.Header().Set("Content-Type", s.docType)
		w.Write(s.docBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newResolver(maxChars int) *Resolver {
	return NewResolver(http.DefaultClient, config.Document{MaxChars: maxChars, LinkLabels: []string{"arquivo"}})
}

func TestResolve_PDF(t *testing.T) {
	s := &site{
		detail:  `<a href="/outra">Outra</a><a href="/files/boletim.PDF?download=1">Baixar</a><a href="/files/second.pdf">x</a>`,
		docType: "application/pdf",
		docBody: buildPDF("Boletim semana 10", "Casos confirmados"),
	}
	srv := s.server(t)

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 6)

	require.NotNil(t, res.DocumentURL)
	assert.Equal(t, srv.URL+"/files/boletim.PDF?download=1", *res.DocumentURL, "first matching link wins")
	require.NotNil(t, res.Text)
	assert.Contains(t, *res.Text, "Boletim semana 10")
	assert.Contains(t, *res.Text, "Casos confirmados")
}

func TestResolve_PDFPageLimit(t *testing.T) {
	s := &site{
		detail:  `<a href="/files/b.pdf">b</a>`,
		docType: "application/octet-stream",
		docBody: buildPDF("Primeira", "Segunda", "Terceira"),
	}
	srv := s.server(t)

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 2)

	require.NotNil(t, res.Text)
	assert.Contains(t, *res.Text, "Primeira")
	assert.Contains(t, *res.Text, "Segunda")
	assert.NotContains(t, *res.Text, "Terceira")
}

func TestResolve_LabelLink(t *testing.T) {
	s := &site{
		detail:  `<p><a href="/files/download">  Arquivo </a></p>`,
		docType: "text/plain; charset=utf-8",
		docBody: []byte("texto do boletim"),
	}
	srv := s.server(t)

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 6)

	require.NotNil(t, res.DocumentURL)
	assert.Equal(t, srv.URL+"/files/download", *res.DocumentURL)
	require.NotNil(t, res.Text)
	assert.Equal(t, "texto do boletim", *res.Text)
}

func TestResolve_NoDocumentLink(t *testing.T) {
	s := &site{detail: `<p>Sem anexo</p><a href="/outra">Outra página</a>`}
	srv := s.server(t)

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 6)

	assert.Nil(t, res.DocumentURL)
	assert.Nil(t, res.Text)
	assert.Zero(t, s.docCalls.Load())
	assert.Equal(t, int32(1), s.detailCalls.Load())
}

func TestResolve_DocumentFetchFails(t *testing.T) {
	s := &site{detail: `<a href="/files/b.pdf">b</a>`, docStatus: http.StatusNotFound}
	srv := s.server(t)

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 6)

	require.NotNil(t, res.DocumentURL)
	assert.Nil(t, res.Text)
}

func TestResolve_CorruptPDF(t *testing.T) {
	s := &site{
		detail:  `<a href="/files/b.pdf">b</a>`,
		docType: "application/pdf",
		docBody: []byte("%PDF-1.4\nthis is not really a pdf"),
	}
	srv := s.server(t)

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 6)

	require.NotNil(t, res.DocumentURL)
	assert.Nil(t, res.Text)
}

func TestResolve_DetailPageUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 6)

	assert.Nil(t, res.DocumentURL)
	assert.Nil(t, res.Text)
}

func TestResolve_TextBounded(t *testing.T) {
	s := &site{
		detail:  `<a href="/files/t.txt">arquivo</a>`,
		docType: "text/plain",
		docBody: []byte(strings.Repeat("ç", 50)),
	}
	srv := s.server(t)

	res := newResolver(10).Resolve(context.Background(), srv.URL+"/detail", 6)

	require.NotNil(t, res.Text)
	assert.Equal(t, strings.Repeat("ç", 10), *res.Text)
}

func TestResolve_EmptyTextIsAbsent(t *testing.T) {
	s := &site{
		detail:  `<a href="/files/t.txt">arquivo</a>`,
		docType: "text/plain",
		docBody: []byte("   \n  "),
	}
	srv := s.server(t)

	res := newResolver(0).Resolve(context.Background(), srv.URL+"/detail", 6)

	require.NotNil(t, res.DocumentURL)
	assert.Nil(t, res.Text)
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 0, "abc"},
		{"abc", 5, "abc"},
		{"abc", 3, "abc"},
		{"ação", 2, "aç"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
