package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TobiSchelling/BulletinWatch/internal/database"
	"github.com/TobiSchelling/BulletinWatch/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const (
	runsPageSize      = 50
	bulletinsPageSize = 100
)

// Server is the read-only archive of runs, bulletins and deliveries.
type Server struct {
	db       *database.DB
	gatherer prometheus.Gatherer
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// BulletinView pairs a seen bulletin with its delivery history.
type BulletinView struct {
	database.SeenRecord
	Deliveries []database.DeliveryRecord
}

// New creates a new Server. A nil gatherer disables /metrics.
func New(db *database.DB, gatherer prometheus.Gatherer) (*Server, error) {
	funcMap := template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"date": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04")
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "run.html", "bulletins.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, gatherer: gatherer, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/runs/", s.handleRun)
	s.mux.HandleFunc("/bulletins", s.handleBulletins)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", metrics.Handler(s.gatherer))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.db.ListRunReports(r.Context(), runsPageSize)
	if err != nil {
		s.serverError(w, "listing runs", err)
		return
	}
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		s.serverError(w, "loading stats", err)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Runs":  runs,
		"Stats": stats,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/runs/")
	if runID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	// /runs/{id}/body serves the archived notification as it was sent.
	if id, ok := strings.CutSuffix(runID, "/body"); ok {
		s.handleRunBody(w, r, id)
		return
	}

	run, err := s.db.GetRunReport(r.Context(), runID)
	if err != nil {
		s.serverError(w, "loading run", err)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "run.html", map[string]any{
		"Run": run,
	})
}

func (s *Server) handleRunBody(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.db.GetRunReport(r.Context(), runID)
	if err != nil {
		s.serverError(w, "loading run", err)
		return
	}
	if run == nil || run.BodyHTML == nil {
		http.NotFound(w, r)
		return
	}

	// The body was sanitized when composed; the CSP keeps it inert anyway.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; img-src *")
	_, _ = w.Write([]byte(*run.BodyHTML))
}

func (s *Server) handleBulletins(w http.ResponseWriter, r *http.Request) {
	seen, err := s.db.ListSeen(r.Context(), bulletinsPageSize)
	if err != nil {
		s.serverError(w, "listing bulletins", err)
		return
	}

	views := make([]BulletinView, 0, len(seen))
	for _, rec := range seen {
		deliveries, err := s.db.ListDeliveries(r.Context(), rec.Fingerprint)
		if err != nil {
			s.serverError(w, "listing deliveries", err)
			return
		}
		views = append(views, BulletinView{SeenRecord: rec, Deliveries: deliveries})
	}

	s.render(w, "bulletins.html", map[string]any{
		"Bulletins": views,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		slog.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		slog.Error("rendering template", "template", name, "error", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	slog.Error(what, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// Serve starts the HTTP server on the given port and shuts it down when
// ctx is cancelled.
func Serve(ctx context.Context, db *database.DB, port int, gatherer prometheus.Gatherer) error {
	srv, err := New(db, gatherer)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "url", "http://"+addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("server shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	}
}
