package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to os.Stdout.
	Output    io.Writer
	AddSource bool
	// RedactPatterns extend DefaultRedactions; whole matches are replaced.
	RedactPatterns []string
}

type contextKey string

const (
	runIDKey contextKey = "run_id"
	stageKey contextKey = "stage"
)

// Redaction rewrites matches of Pattern with Replace, which may reference
// capture groups.
type Redaction struct {
	Pattern string
	Replace string
}

// DefaultRedactions cover secrets that show up in store settings and
// driver errors.
var DefaultRedactions = []Redaction{
	// user:password@ in mongodb:// and postgres:// URIs
	{Pattern: `(?i)([a-z][a-z0-9+.-]*://[^:/\s@]+:)[^@\s]+(@)`, Replace: "${1}[REDACTED]${2}"},
	// password=... in key/value DSNs
	{Pattern: `(?i)(password\s*=\s*)[^\s&;]+`, Replace: "${1}[REDACTED]"},
	{Pattern: `\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`, Replace: "[REDACTED]"},
	{Pattern: `(?i)(secret[_-]?access[_-]?key["'\s:=]+)[A-Za-z0-9/+=]{20,}`, Replace: "${1}[REDACTED]"},
}

type compiledRedaction struct {
	re      *regexp.Regexp
	replace string
}

// NewLogger builds a slog logger with redaction and run correlation.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(config.Level),
		AddSource: config.AddSource,
	}

	var base slog.Handler
	if strings.EqualFold(config.Format, "text") {
		base = slog.NewTextHandler(config.Output, opts)
	} else {
		base = slog.NewJSONHandler(config.Output, opts)
	}

	rules := append([]Redaction{}, DefaultRedactions...)
	for _, p := range config.RedactPatterns {
		rules = append(rules, Redaction{Pattern: p, Replace: "[REDACTED]"})
	}
	redacts := make([]compiledRedaction, 0, len(rules))
	for _, r := range rules {
		if re, err := regexp.Compile(r.Pattern); err == nil {
			redacts = append(redacts, compiledRedaction{re: re, replace: r.Replace})
		}
	}
	return slog.New(&runHandler{next: base, redacts: redacts})
}

// LogLevelFromString converts a level name, defaulting to info.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRunID tags ctx with the pipeline run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run identifier carried by ctx, if any.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithStage tags ctx with the current stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// Stage returns the stage name carried by ctx, if any.
func Stage(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey).(string); ok {
		return s
	}
	return ""
}

// runHandler adds run_id and stage from the context and scrubs string
// attributes before handing records to next.
type runHandler struct {
	next    slog.Handler
	redacts []compiledRedaction
}

func (h *runHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *runHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redact(r.Message), r.PC)
	if id := RunID(ctx); id != "" {
		out.AddAttrs(slog.String("run_id", id))
	}
	if stage := Stage(ctx); stage != "" {
		out.AddAttrs(slog.String("stage", stage))
	}
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &runHandler{next: h.next.WithAttrs(clean), redacts: h.redacts}
}

func (h *runHandler) WithGroup(name string) slog.Handler {
	return &runHandler{next: h.next.WithGroup(name), redacts: h.redacts}
}

func (h *runHandler) redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = h.redactAttr(g)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.redact(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (h *runHandler) redact(s string) string {
	for _, r := range h.redacts {
		s = r.re.ReplaceAllString(s, r.replace)
	}
	return s
}
