package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Observer is notified as a dispatch progresses. Implementations must be safe
// for concurrent use.
type Observer interface {
	// HandlerDone is called after each handler that ran. proceed is the
	// handler's result, which is ignored for after handlers.
	HandlerDone(name string, phase Phase, proceed bool, elapsed time.Duration, err error)
	// DispatchDone is called once per dispatch.
	DispatchDone(path string, outcome Outcome, elapsed time.Duration, err error)
}

// Outcome summarizes a dispatch.
type Outcome struct {
	// Proceeded is true if the downstream handler was called.
	Proceeded bool
	// VetoedBy names the before handler that returned false, if any.
	VetoedBy string
	// Stage is the last stage reached: StageDone unless the dispatch failed.
	Stage Stage
}

// DispatchOption configures a Dispatcher.
type DispatchOption func(*dispatchConfig)

type dispatchConfig struct {
	observer Observer
	logger   *slog.Logger
	vetoFn   any
}

// WithObserver reports every handler call and every dispatch to o.
func WithObserver(o Observer) DispatchOption {
	return func(c *dispatchConfig) { c.observer = o }
}

// WithLogger sets the logger for debug traces. The default is slog.Default().
func WithLogger(l *slog.Logger) DispatchOption {
	return func(c *dispatchConfig) { c.logger = l }
}

// OnVeto calls fn when a before handler stops a request, ahead of the after
// phase. name is the handler that returned false. The Req and Res types must
// match the Dispatcher's.
func OnVeto[Req, Res any](fn func(name string, req Req, res Res)) DispatchOption {
	return func(c *dispatchConfig) { c.vetoFn = fn }
}

// Dispatcher runs the two-phase pipeline of a finalized Registry. It holds
// only immutable state, so one Dispatcher can serve concurrent requests.
type Dispatcher[Req, Res any] struct {
	before, after []*Handler[Req, Res]
	onVeto        func(string, Req, Res)
	dispatchConfig
}

// NewDispatcher snapshots the finalized registry. It returns
// ErrNotInitialized if Finalize has not been called.
func NewDispatcher[Req, Res any](reg *Registry[Req, Res], opts ...DispatchOption) (*Dispatcher[Req, Res], error) {
	before, err := reg.ForPhase(Before)
	if err != nil {
		return nil, err
	}
	after, err := reg.ForPhase(After)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher[Req, Res]{before: before, after: after}
	for _, opt := range opts {
		opt(&d.dispatchConfig)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.vetoFn != nil {
		fn, ok := d.vetoFn.(func(string, Req, Res))
		if !ok {
			return nil, fmt.Errorf("veto callback is %T, expected %T", d.vetoFn, d.onVeto)
		}
		d.onVeto = fn
	}
	return d, nil
}

// Dispatch runs the pipeline for one request:
//
//  1. Every before handler that applies to path is invoked in order until one
//     returns false. The remaining before handlers are skipped.
//  2. downstream is called unless a before handler returned false. A nil
//     downstream is a no-op.
//  3. Every after handler that applies to path is invoked in order, whatever
//     happened before.
//
// The first error, including a recovered panic, stops the pipeline and is
// returned as a *DispatchError.
func (d *Dispatcher[Req, Res]) Dispatch(path string, req Req, res Res, downstream func() error) (out Outcome, err error) {
	if d.observer != nil {
		start := time.Now()
		defer func() { d.observer.DispatchDone(path, out, time.Since(start), err) }()
	}
	var executed []FuncInfo

	out.Stage = StageBefore
	proceed := true
	for _, h := range d.before {
		if !h.Applies(path) {
			continue
		}
		executed = append(executed, h.fn)
		ok, err := d.invoke(h, req, res)
		if err != nil {
			return out, d.fail(StageBefore, h.name, path, err, executed)
		}
		if !ok {
			proceed = false
			out.VetoedBy = h.name
			d.logger.Debug("request vetoed", "path", path, "handler", h.name)
			break
		}
	}

	if proceed {
		out.Stage = StageDownstream
		out.Proceeded = true
		if err := callDownstream(downstream); err != nil {
			return out, d.fail(StageDownstream, "", path, err, executed)
		}
	} else {
		out.Stage = StageSkipped
		if d.onVeto != nil {
			d.onVeto(out.VetoedBy, req, res)
		}
	}

	out.Stage = StageAfter
	for _, h := range d.after {
		if !h.Applies(path) {
			continue
		}
		executed = append(executed, h.fn)
		if _, err := d.invoke(h, req, res); err != nil {
			return out, d.fail(StageAfter, h.name, path, err, executed)
		}
	}
	out.Stage = StageDone
	return out, nil
}

func (d *Dispatcher[Req, Res]) invoke(h *Handler[Req, Res], req Req, res Res) (bool, error) {
	if d.observer == nil {
		return h.Invoke(req, res)
	}
	start := time.Now()
	ok, err := h.Invoke(req, res)
	d.observer.HandlerDone(h.name, h.phase, ok, time.Since(start), err)
	return ok, err
}

func (d *Dispatcher[Req, Res]) fail(stage Stage, handler, path string, err error, executed []FuncInfo) error {
	var pe *PanicError
	if errors.As(err, &pe) && pe.Executed == nil {
		for i := len(executed) - 1; i >= 0; i-- {
			pe.Executed = append(pe.Executed, executed[i])
		}
	}
	d.logger.Debug("dispatch failed", "path", path, "stage", stage, "handler", handler, "err", err)
	return &DispatchError{Stage: stage, Handler: handler, Path: path, Cause: err}
}

func callDownstream(downstream func() error) (err error) {
	if downstream == nil {
		return nil
	}
	defer func() {
		if x := recover(); x != nil {
			err = newPanicError(x, FuncInfo{Name: "downstream"})
		}
	}()
	return downstream()
}
