package parser

import (
	"log/slog"

	"github.com/amishk599/jobsieve/internal/model"
)

// Func extracts listing candidates from one raw message.
type Func func(msg model.RawMessage) []model.Candidate

// Registry dispatches messages to the parser for their source.
type Registry struct {
	parsers  map[model.SourceKind]Func
	fallback Func
	logger   *slog.Logger
}

// NewRegistry returns a registry with the built-in parsers registered.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		parsers: map[model.SourceKind]Func{
			model.SourceLinkedIn:  ParseLinkedIn,
			model.SourceIndeed:    ParseIndeed,
			model.SourceGlassdoor: ParseGlassdoor,
			model.SourceGeneric:   ParseGeneric,
		},
		fallback: ParseGeneric,
		logger:   logger,
	}
}

// Register replaces the parser for a source.
func (r *Registry) Register(source model.SourceKind, fn Func) {
	r.parsers[source] = fn
}

// Parse runs the parser for msg.Source, or the generic parser when the
// source is unknown. It never fails: a parser panic yields no candidates.
func (r *Registry) Parse(msg model.RawMessage) (out []model.Candidate) {
	fn, ok := r.parsers[msg.Source]
	if !ok {
		fn = r.fallback
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("parser panicked", "source", msg.Source, "panic", rec)
			out = nil
		}
	}()
	return fn(msg)
}
