package classifier

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Navaneeth272001/ASR-Track-Tech/internal/delivery"
	"github.com/Navaneeth272001/ASR-Track-Tech/internal/metrics"
)

// Default tuning
const (
	DefaultFuzzyThreshold = 75
	DefaultDebounceWindow = 180 * time.Second
)

// Config contains classification engine configuration
type Config struct {
	Categories     []Category
	Intents        []Intent
	Templates      map[string]string
	FuzzyThreshold float64
	DebounceWindow time.Duration
}

// EventIDSource supplies the event id attached to new messages
type EventIDSource interface {
	Get() string
}

// Option customizes an Engine
type Option func(*Engine)

// WithScorer replaces the fuzzy scorer
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithClock replaces the debounce clock
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEventID attaches the current event id to every message
func WithEventID(src EventIDSource) Option {
	return func(e *Engine) { e.eventID = src }
}

// Engine turns transcripts into announcements. It owns its debounce state and
// is meant to be driven by a single goroutine.
type Engine struct {
	table     *AliasTable
	renderer  *Renderer
	debouncer *Debouncer
	scorer    Scorer
	threshold float64
	clock     Clock
	eventID   EventIDSource
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Result explains what a single Classify call did
type Result struct {
	Normalized string
	Categories []Match
	Intents    []string
	Suppressed int
	Messages   []delivery.Message
}

// NewEngine builds the alias table, templates and debounce state
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	table, err := NewAliasTable(cfg.Categories, cfg.Intents)
	if err != nil {
		return nil, fmt.Errorf("failed to build alias table: %w", err)
	}

	renderer, err := NewRenderer(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to build templates: %w", err)
	}

	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	window := cfg.DebounceWindow
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	e := &Engine{
		table:     table,
		renderer:  renderer,
		scorer:    PartialRatio,
		threshold: threshold,
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	e.logger = e.logger.With("component", "classifier")
	e.debouncer = NewDebouncer(window, e.clock)

	return e, nil
}

// Table returns the alias table
func (e *Engine) Table() *AliasTable {
	return e.table
}

// Debouncer returns the engine's debounce state
func (e *Engine) Debouncer() *Debouncer {
	return e.debouncer
}

// Classify matches a transcript against the tables and returns the messages
// that survive the debounce window, ordered by category then intent in
// configuration order.
func (e *Engine) Classify(transcript string, at time.Time) []delivery.Message {
	return e.Explain(transcript, at).Messages
}

// Explain is Classify with the intermediate matching results
func (e *Engine) Explain(transcript string, at time.Time) Result {
	res := Result{Normalized: Normalize(transcript)}
	res.Categories = e.table.MatchCategories(res.Normalized, e.scorer, e.threshold)
	res.Intents = e.table.MatchIntents(res.Normalized)

	switch {
	case len(res.Categories) == 0:
		e.metrics.RecordSuppressed("no_category", 1)
		return res
	case len(res.Intents) == 0:
		e.metrics.RecordSuppressed("no_intent", 1)
		return res
	}

	eventID := ""
	if e.eventID != nil {
		eventID = e.eventID.Get()
	}

	for _, cat := range res.Categories {
		for _, intent := range res.Intents {
			if !e.debouncer.Allow(cat.Category, intent) {
				res.Suppressed++
				e.logger.Debug("Debounced",
					slog.String("category", cat.Category),
					slog.String("intent", intent))
				continue
			}

			data := TemplateData{
				Category:   cat.Category,
				CategoryID: cat.ID,
				Intent:     intent,
				Transcript: transcript,
				EventID:    eventID,
			}
			text, err := e.renderer.Render(data)
			if err != nil {
				e.logger.Error("Template failed, using fallback", "error", err)
				text = cat.Category + " standby"
			}

			res.Messages = append(res.Messages, delivery.Message{
				CategoryID:    cat.ID,
				Category:      cat.Category,
				Intent:        intent,
				Transcription: transcript,
				MessageText:   text,
				Timestamp:     at,
				EventID:       eventID,
				MessageID:     uuid.NewString(),
			})
			e.metrics.RecordMessageEmitted(cat.Category, intent)

			e.logger.Info("Announcement",
				slog.String("category", cat.Category),
				slog.String("intent", intent),
				slog.String("text", text),
				slog.Bool("fuzzy", cat.Fuzzy),
				slog.Float64("score", cat.Score))
		}
	}
	e.metrics.RecordSuppressed("debounced", res.Suppressed)

	return res
}
