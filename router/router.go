// Package router dispatches decoded action tokens to registered
// handler functions.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"xdao.co/acttoken/action"
	"xdao.co/acttoken/token"
)

// ErrNoHandler reports a decoded action whose handler name has no
// registration and no default is configured.
var ErrNoHandler = errors.New("router: no handler")

// HandlerFunc consumes one decoded action.
type HandlerFunc func(ctx context.Context, a action.Action) error

// Hook runs around dispatch. A before hook returning an error aborts
// dispatch; after hooks run only when the handler succeeded.
type Hook func(ctx context.Context, a action.Action) error

// ErrorHook observes dispatch failures. Hooks must not panic; they run
// after the error is final and cannot alter it.
type ErrorHook func(ctx context.Context, a action.Action, err error)

// Router maps handler names to functions and drives the full
// token-to-handler dispatch path.
//
// Registration and dispatch are safe for concurrent use. Handler names
// follow the same grammar the encoder accepts, so every decodable token
// is routable by construction.
type Router struct {
	dec    *token.Decoder
	logger *slog.Logger

	cleanup    bool
	defaultFn  HandlerFunc
	before     []Hook
	after      []Hook
	errorHooks []ErrorHook

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the dispatch logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithDefault sets the handler invoked when no registration matches.
func WithDefault(fn HandlerFunc) Option {
	return func(r *Router) { r.defaultFn = fn }
}

// WithCleanup makes Route delete short-term storage behind a token
// once its handler returns successfully. One-shot button semantics.
func WithCleanup() Option {
	return func(r *Router) { r.cleanup = true }
}

// WithBefore appends a hook that runs before every handler.
func WithBefore(h Hook) Option {
	return func(r *Router) { r.before = append(r.before, h) }
}

// WithAfter appends a hook that runs after every successful handler.
func WithAfter(h Hook) Option {
	return func(r *Router) { r.after = append(r.after, h) }
}

// WithErrorHook appends an observer for dispatch failures.
func WithErrorHook(h ErrorHook) Option {
	return func(r *Router) { r.errorHooks = append(r.errorHooks, h) }
}

// New constructs a Router decoding through dec.
func New(dec *token.Decoder, opts ...Option) *Router {
	r := &Router{
		dec:      dec,
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Handle registers fn under name. Re-registering a name replaces the
// previous function.
func (r *Router) Handle(name string, fn HandlerFunc) error {
	if err := action.CheckHandler(name); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if fn == nil {
		return fmt.Errorf("router: nil handler for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		r.logger.Warn("replacing handler registration", "handler", name)
	}
	r.handlers[name] = fn
	return nil
}

// MustHandle is Handle that panics on registration errors. Intended
// for wiring at program start.
func (r *Router) MustHandle(name string, fn HandlerFunc) {
	if err := r.Handle(name, fn); err != nil {
		panic(err)
	}
}

// Handlers returns the registered handler names.
func (r *Router) Handlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Route decodes tok and dispatches the record to its handler.
//
// Decode errors, before-hook errors and handler errors are all passed
// to the error hooks before being returned. Short-term cleanup happens
// only after a fully successful dispatch, and a cleanup failure is
// logged rather than returned: the action already ran.
func (r *Router) Route(ctx context.Context, tok []byte) error {
	a, err := r.dec.Decode(ctx, tok)
	if err != nil {
		r.observeError(ctx, action.Action{}, err)
		return err
	}
	if err := r.dispatch(ctx, a); err != nil {
		r.observeError(ctx, a, err)
		return err
	}

	if r.cleanup {
		if removed, err := r.dec.Cleanup(ctx, tok); err != nil {
			r.logger.Warn("short-term cleanup failed",
				"handler", a.Handler, "error", err)
		} else if removed {
			r.logger.Debug("short-term record removed", "handler", a.Handler)
		}
	}
	return nil
}

// Dispatch runs an already-decoded record through hooks and its
// handler, without touching storage.
func (r *Router) Dispatch(ctx context.Context, a action.Action) error {
	if err := r.dispatch(ctx, a); err != nil {
		r.observeError(ctx, a, err)
		return err
	}
	return nil
}

func (r *Router) dispatch(ctx context.Context, a action.Action) error {
	fn := r.lookup(a.Handler)
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrNoHandler, a.Handler)
	}

	for _, h := range r.before {
		if err := h(ctx, a); err != nil {
			return fmt.Errorf("router: before hook: %w", err)
		}
	}

	r.logger.Debug("dispatching action", "handler", a.Handler, "params", len(a.Params))
	if err := fn(ctx, a); err != nil {
		return fmt.Errorf("router: handler %q: %w", a.Handler, err)
	}

	for _, h := range r.after {
		if err := h(ctx, a); err != nil {
			return fmt.Errorf("router: after hook: %w", err)
		}
	}
	return nil
}

func (r *Router) lookup(name string) HandlerFunc {
	r.mu.RLock()
	fn := r.handlers[name]
	r.mu.RUnlock()
	if fn == nil {
		fn = r.defaultFn
	}
	return fn
}

func (r *Router) observeError(ctx context.Context, a action.Action, err error) {
	for _, h := range r.errorHooks {
		h(ctx, a, err)
	}
}
