package log

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorKindAttrKey names the type of the logged error once stack and
// message wrappers are removed, e.g. "ConfigError".
const ErrorKindAttrKey = "error.kind"

// ErrFmtHandler decorates records that carry an error attribute with the
// stack trace recorded by cockroachdb/errors and the error's kind.
type ErrFmtHandler struct {
	next slog.Handler
}

// WrapByErrFmtHandler wraps handler with an ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{next: handler}
}

func (h *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var found error
	r.Attrs(func(attr slog.Attr) bool {
		if err, ok := attr.Value.Any().(error); ok {
			found = err
			return false
		}
		return true
	})
	if found == nil {
		return h.next.Handle(ctx, r)
	}

	r.AddAttrs(slog.String(ErrorKindAttrKey, errorKind(found)))
	if st := extractStacktrace(found); st != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, st))
	}
	return h.next.Handle(ctx, r)
}

func (h *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{next: h.next.WithGroup(g)}
}

// extractStacktrace returns the stack recorded when err was created or
// wrapped, or "" if there is none.
func extractStacktrace(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}

// errorKind returns the type name of the first error in the chain that is
// not one of cockroachdb's wrappers.
func errorKind(err error) string {
	for {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		next := errors.UnwrapOnce(err)
		if next == nil || !strings.HasPrefix(t.PkgPath(), "github.com/cockroachdb/errors") {
			return t.Name()
		}
		err = next
	}
}
