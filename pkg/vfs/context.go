package vfs

import (
	"context"
	"log/slog"
	"time"

	"github.com/rs/xid"
)

type ctxKey struct{}

// Context is the request-scoped bundle threaded through every FileSystem
// call: an operation id, a logger, and cancellation. It embeds the
// standard context.Context so deadlines and cancel signals propagate
// through the usual stdlib mechanisms; consumers that only need
// cancellation can keep passing the embedded context.Context around.
type Context struct {
	context.Context
	OperationID string
	Logger      *slog.Logger
}

// NewContext creates a request-scoped Context rooted at parent, stamping
// a fresh operation id and binding logger (or slog.Default() if nil).
func NewContext(parent context.Context, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	id := xid.New().String()
	ctx := &Context{
		Context:     parent,
		OperationID: id,
		Logger:      logger.With(slog.String("operation_id", id)),
	}
	ctx.Context = context.WithValue(parent, ctxKey{}, ctx)
	return ctx
}

// WithCancel derives a cancellable child Context.
func WithCancel(parent *Context) (*Context, context.CancelFunc) {
	inner, cancel := context.WithCancel(parent.Context)
	child := &Context{Context: inner, OperationID: parent.OperationID, Logger: parent.Logger}
	return child, cancel
}

// WithTimeout derives a child Context that cancels itself after d.
func WithTimeout(parent *Context, d time.Duration) (*Context, context.CancelFunc) {
	inner, cancel := context.WithTimeout(parent.Context, d)
	child := &Context{Context: inner, OperationID: parent.OperationID, Logger: parent.Logger}
	return child, cancel
}

// FromContext recovers the *Context stashed by NewContext, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	v, ok := ctx.Value(ctxKey{}).(*Context)
	return v, ok
}

// Cancelled reports whether ctx has been cancelled or its deadline
// exceeded; callers at suspension points use this to fail fast with
// CodeCancelled.
func (c *Context) Cancelled() bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

// CheckCancelled returns a CodeCancelled error if the context was
// cancelled, nil otherwise. Intended to be called at every suspension
// point inside a backend implementation.
func (c *Context) CheckCancelled() error {
	if c.Cancelled() {
		return NewError(CodeCancelled, nil, c.Err().Error())
	}
	return nil
}
