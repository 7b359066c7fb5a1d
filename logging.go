package shadow

import (
	"context"
	"log/slog"
)

// nopLogger is the default logger for components constructed without an
// explicit *slog.Logger, so callers never need to nil-check a logger field.
var nopLogger = slog.New(discardHandler{})

// NopLogger returns the package's discard logger, for callers outside this
// package (e.g. store/postgres) that need the same never-nil default.
func NopLogger() *slog.Logger { return nopLogger }

// discardHandler is a slog.Handler that drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
