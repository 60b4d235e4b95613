package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces the value of a masked attribute.
const MaskValue = "***REDACTED***"

// maskedKeys are attribute keys (lower-cased) whose values are always masked.
// Both the snake_case and the hyphenated spellings of the login fields are
// listed because the machine API uses the hyphenated form on the wire.
var maskedKeys = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
	"password":            {},
	"token":               {},
	"id_token":            {},
	"id-token":            {},
	"idtoken":             {},
	"refresh_token":       {},
	"refresh-token":       {},
	"refreshtoken":        {},
	"access_token":        {},
	"api_key":             {},
	"api-key":             {},
	"apikey":              {},
	"task_token":          {},
	"secret":              {},
	"secret_key":          {},
}

// maskedKeywords mask any key that contains them, e.g. "saved_password"
// or "x-auth-header". "key" alone is deliberately absent: it matches
// register keys and account keys that are safe to log.
var maskedKeywords = []string{
	"password", "passwd", "token", "secret", "auth", "credential",
}

// maskedValues mask a string attribute regardless of its key.
var maskedValues = []*regexp.Regexp{
	// JWT (header.payload.signature)
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^bearer\s+\S+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	// opaque keys
	regexp.MustCompile(`^[A-Za-z0-9_-]{40,}$`),
}

// SecureHandler is an slog.Handler that masks secrets in attributes
// before delegating to the wrapped handler. Groups are walked recursively.
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler wraps next. A nil next wraps slog.Default's handler.
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(mask(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		masked = append(masked, mask(a))
	}
	return &SecureHandler{next: h.next.WithAttrs(masked)}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

func mask(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]slog.Attr, 0, len(group))
		for _, g := range group {
			masked = append(masked, mask(g))
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	}

	if isMaskedKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() == slog.KindString && isMaskedValue(a.Value.String()) {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

func isMaskedKey(key string) bool {
	key = strings.ToLower(key)
	if _, ok := maskedKeys[key]; ok {
		return true
	}
	for _, kw := range maskedKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func isMaskedValue(v string) bool {
	for _, re := range maskedValues {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewSecureLogger returns a text logger writing to w. Verbose lowers the
// level from Warn to Debug.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelFor(verbose)})
	return slog.New(NewSecureHandler(h))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFor(verbose)})
	return slog.New(NewSecureHandler(h))
}
