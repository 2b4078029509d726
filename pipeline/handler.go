package pipeline

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Phase says when a handler runs relative to the downstream handler.
type Phase uint8

const (
	// Before handlers run ahead of the downstream handler and may veto it by
	// returning false.
	Before Phase = iota
	// After handlers always run once the before phase (and the downstream
	// handler, if it was allowed) is over. Their result is ignored.
	After
)

func (p Phase) String() string {
	switch p {
	case Before:
		return "before"
	case After:
		return "after"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// ParsePhase parses "before" or "after" (case-insensitive). The empty string
// is Before.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "before":
		return Before, nil
	case "after":
		return After, nil
	}
	return Before, fmt.Errorf("unknown phase %q, expected before or after", s)
}

// Option configures a handler at registration.
type Option func(*options)

type options struct {
	name     string
	patterns []string
	order    int
	phase    Phase
}

// Paths restricts a handler to requests whose path matches at least one of the
// patterns. Without it a handler applies to every path. Repeated Paths options
// accumulate.
func Paths(patterns ...string) Option {
	return func(o *options) { o.patterns = append(o.patterns, patterns...) }
}

// Order sets the handler's position within its phase. Lower runs earlier and
// equal orders run in registration order.
func Order(n int) Option {
	return func(o *options) { o.order = n }
}

// InPhase sets the phase the handler runs in.
func InPhase(p Phase) Option {
	return func(o *options) { o.phase = p }
}

// Name overrides the handler name, which otherwise is the Go function name.
func Name(name string) Option {
	return func(o *options) { o.name = name }
}

// FuncInfo describes a registered handler function.
type FuncInfo struct {
	Name string // fully-qualified name, e.g.: github.com/foo/bar.FuncName
	File string
	Line int
	Func reflect.Value
}

func valueOfFunction(fn any) (FuncInfo, error) {
	if fn == nil {
		return FuncInfo{}, fmt.Errorf("should be a function, handler is <nil>")
	}
	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func {
		return FuncInfo{}, fmt.Errorf("should be a function, handler is %s", val.Type())
	}
	if val.IsNil() {
		return FuncInfo{}, fmt.Errorf("should be a function, handler is a nil %s", val.Type())
	}
	info := runtime.FuncForPC(val.Pointer())
	if info == nil {
		return FuncInfo{Name: val.Type().String(), Func: val}, nil
	}
	file, line := info.FileLine(val.Pointer())
	return FuncInfo{info.Name(), file, line, val}, nil
}

// Handler is one registered pipeline handler. It is immutable once
// registered.
type Handler[Req, Res any] struct {
	name     string
	patterns []string
	order    int
	phase    Phase
	fn       FuncInfo
	call     func(Req, Res) (bool, error)
}

// Name of the handler.
func (h *Handler[Req, Res]) Name() string { return h.name }

// Patterns returns a copy of the path patterns the handler applies to.
func (h *Handler[Req, Res]) Patterns() []string {
	return append([]string(nil), h.patterns...)
}

// Order of the handler within its phase.
func (h *Handler[Req, Res]) Order() int { return h.order }

// Phase the handler runs in.
func (h *Handler[Req, Res]) Phase() Phase { return h.phase }

// Func describes the underlying Go function.
func (h *Handler[Req, Res]) Func() FuncInfo { return h.fn }

// Applies reports whether the handler should run for path.
func (h *Handler[Req, Res]) Applies(path string) bool {
	return MatchAny(h.patterns, path)
}

// Invoke calls the handler with the values it declared. A panic inside the
// handler is recovered and returned as a *PanicError.
func (h *Handler[Req, Res]) Invoke(req Req, res Res) (proceed bool, err error) {
	defer func() {
		if x := recover(); x != nil {
			proceed, err = false, newPanicError(x, h.fn)
		}
	}()
	return h.call(req, res)
}

func (h *Handler[Req, Res]) String() string {
	return fmt.Sprintf("%s[%d] %s %s", h.phase, h.order, h.name, strings.Join(h.patterns, ","))
}
