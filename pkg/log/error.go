package log

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// stackTracer is implemented by github.com/pkg/errors' wrapped errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Error renders err as an slog.Attr, including its stack trace when the
// error carries one (e.g. produced by errors.WithStack or vfs.Wrap).
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	if st, ok := err.(stackTracer); ok {
		return slog.Group("error",
			slog.String("message", err.Error()),
			slog.String("stack", fmtStackTrace(st.StackTrace())),
		)
	}
	return slog.String("error", err.Error())
}

func fmtStackTrace(trace errors.StackTrace) string {
	return fmt.Sprintf("%+v", trace)
}
