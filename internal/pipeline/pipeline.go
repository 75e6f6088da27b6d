package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/BulletinWatch/internal/catalog"
	"github.com/TobiSchelling/BulletinWatch/internal/compose"
	"github.com/TobiSchelling/BulletinWatch/internal/config"
	"github.com/TobiSchelling/BulletinWatch/internal/database"
	"github.com/TobiSchelling/BulletinWatch/internal/document"
	"github.com/TobiSchelling/BulletinWatch/internal/httpclient"
	"github.com/TobiSchelling/BulletinWatch/internal/llm"
	"github.com/TobiSchelling/BulletinWatch/internal/metrics"
	"github.com/TobiSchelling/BulletinWatch/internal/notify"
	"github.com/TobiSchelling/BulletinWatch/internal/summarize"
)

// Catalog lists the current bulletins of the source.
type Catalog interface {
	FetchCandidates(ctx context.Context, sourceURL string, limit int) ([]catalog.CandidateItem, error)
}

// Resolver finds and extracts the document of a bulletin.
type Resolver interface {
	Resolve(ctx context.Context, detailURL string, maxPages int) document.Resolution
}

// Summarizer produces the summary of a bulletin.
type Summarizer interface {
	SummarizeOutcome(ctx context.Context, title string, text *string) (string, summarize.Outcome)
}

// Renderer renders a batch as the notification body.
type Renderer interface {
	Render(b compose.Batch) (string, error)
}

// Store persists seen bulletins, delivery outcomes, and run reports.
type Store interface {
	IsNew(ctx context.Context, fingerprint string) (bool, error)
	RecordSeen(ctx context.Context, in database.SeenInput) (*database.SeenRecord, error)
	RecordDelivery(ctx context.Context, fingerprint, channel, status string) error
	InsertRunReport(ctx context.Context, r database.RunReport) error
}

// Recorder receives run metrics. It may be nil.
type Recorder interface {
	RecordRun(outcome string, candidates, newItems int, started, finished time.Time)
	RecordEnrichment(result string)
	RecordDelivery(status string)
}

// Options are the per-run parameters.
type Options struct {
	SourceURL     string
	Limit         int
	MaxPages      int
	Workers       int
	SubjectPrefix string
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Store      Store
	Catalog    Catalog
	Resolver   Resolver
	Summarizer Summarizer
	Renderer   Renderer
	Notifier   notify.Notifier
	Metrics    Recorder
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a pipeline run.
type Result struct {
	RunID      string
	Steps      []StepResult
	Candidates int
	NewItems   int
	// Items are the enriched new bulletins in listing order.
	Items []compose.EnrichedItem
	// Pending lists what a dry run found new.
	Pending  []catalog.CandidateItem
	Subject  string
	Delivery notify.Status
}

// Pipeline runs one detection, enrichment, and notification cycle.
type Pipeline struct {
	opts  Options
	deps  Deps
	now   func() time.Time
	newID func() string
}

// New wires a pipeline from configuration. m may be nil.
func New(cfg *config.Config, db *database.DB, m *metrics.Collector) (*Pipeline, error) {
	loc := cfg.Location()
	client := httpclient.New(cfg.HTTP)

	renderer, err := compose.NewRenderer(loc)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Store:    db,
		Catalog:  catalog.NewFetcher(client, cfg.Source, loc),
		Resolver: document.NewResolver(client, cfg.Document),
		Summarizer: summarize.NewSummarizer(
			llm.CreateProvider(cfg.Summarization),
			cfg.Summarization.MaxTokens,
			cfg.Summarization.Timeout,
		),
		Renderer: renderer,
		Notifier: notify.NewSendGridNotifier(cfg.Email),
	}
	if m != nil {
		deps.Metrics = m
	}

	return NewWithDeps(Options{
		SourceURL:     cfg.Source.URL,
		Limit:         cfg.Source.Limit,
		MaxPages:      cfg.Document.MaxPages,
		Workers:       cfg.Pipeline.Workers,
		SubjectPrefix: cfg.Email.SubjectPrefix,
	}, deps), nil
}

// NewWithDeps creates a pipeline from explicit collaborators.
func NewWithDeps(opts Options, deps Deps) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{
		opts:  opts,
		deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// pending is a listed bulletin not seen before.
type pending struct {
	catalog.CandidateItem
	fingerprint string
}

// Run executes one cycle. Catalog and store failures abort the run and are
// returned; enrichment and delivery problems are reported in the steps.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := p.now()
	r := &Result{RunID: p.newID()}
	slog.Info("run started", "run_id", r.RunID, "source", p.opts.SourceURL)

	candidates, err := p.fetchCatalog(ctx, r)
	if err != nil {
		return r, p.fail(r, started, err)
	}

	fresh, err := p.filterNew(ctx, r, candidates)
	if err != nil {
		return r, p.fail(r, started, err)
	}

	if len(fresh) == 0 {
		if err := p.recordRun(ctx, r, started, nil); err != nil {
			return r, p.fail(r, started, err)
		}
		p.finish(r, started)
		return r, nil
	}

	if err := p.persistSeen(ctx, r, fresh); err != nil {
		return r, p.fail(r, started, err)
	}

	r.Items = p.enrichEach(ctx, r, fresh)
	if err := ctx.Err(); err != nil {
		return r, p.fail(r, started, fmt.Errorf("run interrupted during enrichment: %w", err))
	}

	batch := compose.Compose(r.Items, p.now())
	r.Subject = compose.Subject(batch, p.opts.SubjectPrefix)
	body := p.deliver(ctx, r, batch)

	if err := p.recordDeliveries(ctx, r); err != nil {
		return r, p.fail(r, started, err)
	}
	if err := p.recordRun(ctx, r, started, body); err != nil {
		return r, p.fail(r, started, err)
	}

	p.finish(r, started)
	return r, nil
}

// DryRun fetches the catalog and reports which bulletins are new without
// writing anything or delivering.
func (p *Pipeline) DryRun(ctx context.Context) (*Result, error) {
	r := &Result{RunID: p.newID()}

	candidates, err := p.fetchCatalog(ctx, r)
	if err != nil {
		return r, err
	}
	fresh, err := p.filterNew(ctx, r, candidates)
	if err != nil {
		return r, err
	}
	for _, f := range fresh {
		r.Pending = append(r.Pending, f.CandidateItem)
	}

	summary := "[dry-run] nothing would be sent"
	if len(fresh) > 0 {
		summary = fmt.Sprintf("[dry-run] would enrich %d bulletins and send one notification", len(fresh))
	}
	r.Steps = append(r.Steps, StepResult{Name: "Deliver", Summary: summary})
	return r, nil
}

func (p *Pipeline) fetchCatalog(ctx context.Context, r *Result) ([]catalog.CandidateItem, error) {
	items, err := p.deps.Catalog.FetchCandidates(ctx, p.opts.SourceURL, p.opts.Limit)
	if err != nil {
		err = fmt.Errorf("fetching catalog: %w", err)
		r.Steps = append(r.Steps, StepResult{Name: "Catalog", Err: err})
		return nil, err
	}
	r.Candidates = len(items)
	p.step(r, StepResult{Name: "Catalog", Summary: fmt.Sprintf("Listed %d bulletins", len(items))})
	return items, nil
}

// filterNew keeps candidates whose fingerprint is unknown. A bulletin
// listed twice is kept once.
func (p *Pipeline) filterNew(ctx context.Context, r *Result, items []catalog.CandidateItem) ([]pending, error) {
	var fresh []pending
	listed := make(map[string]struct{}, len(items))
	for _, item := range items {
		fp := database.Fingerprint(item.Title, item.DetailURL)
		if _, dup := listed[fp]; dup {
			continue
		}
		listed[fp] = struct{}{}

		isNew, err := p.deps.Store.IsNew(ctx, fp)
		if err != nil {
			err = fmt.Errorf("checking seen state: %w", err)
			r.Steps = append(r.Steps, StepResult{Name: "Filter", Err: err})
			return nil, err
		}
		if isNew {
			fresh = append(fresh, pending{CandidateItem: item, fingerprint: fp})
		}
	}
	r.NewItems = len(fresh)
	p.step(r, StepResult{Name: "Filter", Summary: fmt.Sprintf("%d new of %d listed", len(fresh), len(items))})
	return fresh, nil
}

// persistSeen records every new bulletin before any enrichment starts, so
// an interrupted run never notifies the same bulletin twice.
func (p *Pipeline) persistSeen(ctx context.Context, r *Result, fresh []pending) error {
	for _, f := range fresh {
		_, err := p.deps.Store.RecordSeen(ctx, database.SeenInput{
			Title:       f.Title,
			URL:         f.DetailURL,
			PublishedAt: f.PublishedAt,
		})
		if err != nil {
			err = fmt.Errorf("recording seen bulletin: %w", err)
			r.Steps = append(r.Steps, StepResult{Name: "Persist", Err: err})
			return err
		}
	}
	p.step(r, StepResult{Name: "Persist", Summary: fmt.Sprintf("Recorded %d bulletins as seen", len(fresh))})
	return nil
}

// enrichEach resolves and summarizes items on a bounded pool. Results land
// at their input index, so order follows the listing.
func (p *Pipeline) enrichEach(ctx context.Context, r *Result, fresh []pending) []compose.EnrichedItem {
	enriched := make([]compose.EnrichedItem, len(fresh))
	outcomes := make([]summarize.Outcome, len(fresh))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, f := range fresh {
		i, f := i, f
		g.Go(func() error {
			res := p.deps.Resolver.Resolve(ctx, f.DetailURL, p.opts.MaxPages)
			summary, outcome := p.deps.Summarizer.SummarizeOutcome(ctx, f.Title, res.Text)
			enriched[i] = compose.EnrichedItem{
				CandidateItem: f.CandidateItem,
				Fingerprint:   f.fingerprint,
				DocumentURL:   res.DocumentURL,
				ExtractedText: res.Text,
				Summary:       summary,
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[summarize.Outcome]int)
	for _, o := range outcomes {
		counts[o]++
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordEnrichment(string(o))
		}
	}
	p.step(r, StepResult{
		Name: "Enrich",
		Summary: fmt.Sprintf("Enriched %d bulletins: %d summarized, %d fallback, %d unavailable",
			len(fresh), counts[summarize.Summarized], counts[summarize.Fallback], counts[summarize.Unavailable]),
	})
	return enriched
}

// deliver renders the batch and hands it to the notifier exactly once.
// Failures are reported in the step, not returned.
func (p *Pipeline) deliver(ctx context.Context, r *Result, batch compose.Batch) *string {
	html, err := p.deps.Renderer.Render(batch)
	if err != nil {
		r.Delivery = notify.StatusError
		p.step(r, StepResult{Name: "Deliver", Err: err})
		p.recordDeliveryMetric(r.Delivery)
		return nil
	}

	status, err := p.deps.Notifier.Deliver(ctx, r.Subject, html)
	r.Delivery = status
	p.recordDeliveryMetric(status)
	if err != nil {
		p.step(r, StepResult{Name: "Deliver", Err: err})
	} else {
		p.step(r, StepResult{
			Name:    "Deliver",
			Summary: fmt.Sprintf("Notification %q via %s: %s", r.Subject, p.deps.Notifier.Channel(), status),
		})
	}
	return &html
}

func (p *Pipeline) recordDeliveries(ctx context.Context, r *Result) error {
	channel := p.deps.Notifier.Channel()
	for _, item := range r.Items {
		if err := p.deps.Store.RecordDelivery(ctx, item.Fingerprint, channel, string(r.Delivery)); err != nil {
			err = fmt.Errorf("recording delivery: %w", err)
			r.Steps = append(r.Steps, StepResult{Name: "Record", Err: err})
			return err
		}
	}
	return nil
}

func (p *Pipeline) recordRun(ctx context.Context, r *Result, started time.Time, body *string) error {
	report := database.RunReport{
		RunID:      r.RunID,
		StartedAt:  started,
		FinishedAt: p.now(),
		Candidates: r.Candidates,
		NewItems:   r.NewItems,
		BodyHTML:   body,
	}
	if r.Delivery != "" {
		status := string(r.Delivery)
		report.DeliveryStatus = &status
	}
	if r.Subject != "" {
		subject := r.Subject
		report.Subject = &subject
	}
	if err := p.deps.Store.InsertRunReport(ctx, report); err != nil {
		err = fmt.Errorf("recording run report: %w", err)
		r.Steps = append(r.Steps, StepResult{Name: "Record", Err: err})
		return err
	}
	p.step(r, StepResult{Name: "Record", Summary: fmt.Sprintf("Run %s recorded", r.RunID)})
	return nil
}

func (p *Pipeline) step(r *Result, s StepResult) {
	r.Steps = append(r.Steps, s)
	if s.Err != nil {
		slog.Warn("step failed", "run_id", r.RunID, "step", s.Name, "error", s.Err)
		return
	}
	slog.Info("step finished", "run_id", r.RunID, "step", s.Name, "summary", s.Summary)
}

func (p *Pipeline) recordDeliveryMetric(status notify.Status) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordDelivery(string(status))
	}
}

func (p *Pipeline) finish(r *Result, started time.Time) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordRun("ok", r.Candidates, r.NewItems, started, p.now())
	}
	slog.Info("run finished", "run_id", r.RunID, "candidates", r.Candidates, "new_items", r.NewItems, "delivery", r.Delivery)
}

func (p *Pipeline) fail(r *Result, started time.Time, err error) error {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordRun("error", r.Candidates, r.NewItems, started, p.now())
	}
	slog.Error("run failed", "run_id", r.RunID, "error", err)
	return err
}
