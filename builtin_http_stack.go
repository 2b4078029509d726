package bookends

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/augustoroman/bookends/pipeline"
)

// Registry is the pipeline registry used for net/http: handlers may accept
// *http.Request, http.ResponseWriter, both or neither.
type Registry = pipeline.Registry[*http.Request, http.ResponseWriter]

// Dispatcher is the pipeline dispatcher used for net/http.
type Dispatcher = pipeline.Dispatcher[*http.Request, http.ResponseWriter]

// New constructs a clean Stack instance, ready for you to start piling on the
// handlers. Errors are handled by HandleError.
func New() *Stack {
	return &Stack{
		reg:   pipeline.NewRegistry[*http.Request, http.ResponseWriter](),
		onErr: HandleError,
	}
}

// TheUsual constructs a popular new Stack instance with some delicious
// defaults installed and ready to go: request logging and simple error
// handling.
func TheUsual() *Stack {
	return New().LogRequests().OnErr(HandleError)
}

// Stack is the set of before and after handlers that wrap your http.Handlers.
//
// A Stack is configured during startup and frozen the first time it serves a
// request (or is described). Adding handlers after that panics, as does
// adding a handler with an unsupported signature: these are programming
// errors that should be found when the server starts.
type Stack struct {
	reg       *Registry
	onErr     func(http.ResponseWriter, *http.Request, error)
	opts      []pipeline.DispatchOption
	logging   bool
	vetoCode  int
	rawPath   bool
	configure sync.Once
	d         *Dispatcher
}

// Before adds a handler that runs ahead of the wrapped http.Handler. The
// handler returns false to stop the request: the remaining before handlers
// and the wrapped http.Handler are skipped. The handler should write a
// response when it does that.
func (s *Stack) Before(handler any, opts ...pipeline.Option) *Stack {
	return s.register(handler, append(opts[:len(opts):len(opts)], pipeline.InPhase(pipeline.Before)))
}

// After adds a handler that runs once the before handlers and the wrapped
// http.Handler are done. After handlers run for every matching request, even
// when a before handler stopped it. Their return value is ignored.
func (s *Stack) After(handler any, opts ...pipeline.Option) *Stack {
	return s.register(handler, append(opts[:len(opts):len(opts)], pipeline.InPhase(pipeline.After)))
}

// Wrap adds the Before and After handlers of w with the same options.
func (s *Stack) Wrap(w Wrap, opts ...pipeline.Option) *Stack {
	if w.Before != nil {
		s.Before(w.Before, opts...)
	}
	if w.After != nil {
		s.After(w.After, opts...)
	}
	return s
}

// Provide adds every handler supplied by p, e.g. a manifest file.
func (s *Stack) Provide(p pipeline.Provider) *Stack {
	if err := s.reg.RegisterAll(p); err != nil {
		panic(fmt.Errorf("bookends: %w", err))
	}
	return s
}

// OnErr sets the function that responds when a handler fails or panics.
func (s *Stack) OnErr(handler func(http.ResponseWriter, *http.Request, error)) *Stack {
	s.onErr = handler
	return s
}

// LogRequests enables the request log. See LogEntry.
func (s *Stack) LogRequests() *Stack {
	s.logging = true
	return s
}

// VetoStatus sets the status code written when a before handler stops a
// request without writing a response. The default is 403 Forbidden.
func (s *Stack) VetoStatus(code int) *Stack {
	s.vetoCode = code
	return s
}

// MatchRawPath makes handler patterns match the request path as sent, with
// its percent-encoding intact (URL.EscapedPath). By default they match the
// decoded URL.Path, the path that routers route on. With raw matching,
// /api/%70rivate/data is not matched by /api/private/**.
func (s *Stack) MatchRawPath() *Stack {
	s.rawPath = true
	return s
}

// With configures the dispatcher, e.g. with pipeline.WithObserver.
func (s *Stack) With(opts ...pipeline.DispatchOption) *Stack {
	s.opts = append(s.opts, opts...)
	return s
}

func (s *Stack) register(handler any, opts []pipeline.Option) *Stack {
	if _, err := s.reg.Register(handler, opts...); err != nil {
		panic(fmt.Errorf("bookends: %w", err))
	}
	return s
}

func (s *Stack) dispatcher() *Dispatcher {
	s.configure.Do(func() {
		if err := s.reg.Finalize(); err != nil {
			panic(fmt.Errorf("bookends: %w", err))
		}
		opts := append([]pipeline.DispatchOption{pipeline.OnVeto(s.vetoed)}, s.opts...)
		d, err := pipeline.NewDispatcher(s.reg, opts...)
		if err != nil {
			panic(fmt.Errorf("bookends: %w", err))
		}
		s.d = d
	})
	return s.d
}

// vetoed responds for a before handler that stopped the request without
// writing anything, so that after handlers see the final status.
func (s *Stack) vetoed(_ string, _ *http.Request, w http.ResponseWriter) {
	if StatusOf(w) != 0 {
		return
	}
	code := s.vetoCode
	if code == 0 {
		code = http.StatusForbidden
	}
	http.Error(w, http.StatusText(code), code)
}

// Describe writes the handlers of the stack as a table in the order they run.
// It freezes the stack.
func (s *Stack) Describe(w io.Writer) error {
	s.dispatcher()
	return s.reg.Describe(w)
}

// Then wraps h with the stack.
func (s *Stack) Then(h http.Handler) http.Handler {
	s.dispatcher()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Serve(w, r, h)
	})
}

// ThenFunc wraps h with the stack.
func (s *Stack) ThenFunc(h http.HandlerFunc) http.Handler {
	return s.Then(h)
}

// ServeHTTP runs the stack without a wrapped handler, so that a Stack can be
// used as an http.Handler on its own.
func (s *Stack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Serve(w, r, nil)
}

// Serve runs the stack for one request, calling next unless a before handler
// stops the request. next may be nil. It is the building block for
// adapters to other routers.
func (s *Stack) Serve(w http.ResponseWriter, r *http.Request, next http.Handler) pipeline.Outcome {
	d := s.dispatcher()

	rw, ok := w.(*ResponseWriter)
	if !ok {
		rw = WrapResponseWriter(w)
	}
	var entry *LogEntry
	if s.logging {
		entry = NewLogEntry(r)
		r = r.WithContext(withEntry(r.Context(), entry))
	}

	var downstream func() error
	if next != nil {
		downstream = func() error {
			next.ServeHTTP(rw, r)
			return nil
		}
	}

	path := r.URL.Path
	if s.rawPath {
		path = r.URL.EscapedPath()
	}
	out, err := d.Dispatch(path, r, rw, downstream)
	if err != nil && s.onErr != nil {
		s.onErr(rw, r, err)
	}
	if entry != nil {
		entry.VetoedBy = out.VetoedBy
		entry.Commit(rw)
	}
	return out
}
