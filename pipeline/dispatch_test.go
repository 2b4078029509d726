package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// say returns a handler that notes name on the response.
func say(name string, proceed bool) func(*testRes) bool {
	return func(w *testRes) bool { w.note(name); return proceed }
}

func newDispatcher(t *testing.T, setup func(r *Registry[*testReq, *testRes]), opts ...DispatchOption) *Dispatcher[*testReq, *testRes] {
	t.Helper()
	r := NewRegistry[*testReq, *testRes]()
	setup(r)
	require.NoError(t, r.Finalize())
	d, err := NewDispatcher(r, opts...)
	require.NoError(t, err)
	return d
}

func downstream(w *testRes) func() error {
	return func() error { w.note("downstream"); return nil }
}

func TestDispatchRunsAllPhasesInOrder(t *testing.T) {
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.After(say("a2", true), Name("a2"), Order(2))
		r.Before(say("b2", true), Name("b2"), Order(2))
		r.After(say("a1", false), Name("a1"), Order(1))
		r.Before(say("b1", true), Name("b1"), Order(1))
	})
	res := &testRes{}
	out, err := d.Dispatch("/x", &testReq{}, res, downstream(res))
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "downstream", "a1", "a2"}, res.notes)
	assert.Equal(t, Outcome{Proceeded: true, Stage: StageDone}, out)
}

func TestDispatchShortCircuit(t *testing.T) {
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(say("H1", true), Name("H1"), Order(1))
		r.Before(say("H2", false), Name("H2"), Order(2))
		r.Before(say("H3", true), Name("H3"), Order(3), Paths("/unrelated/**", "/api/**"))
		r.After(say("after", true), Name("after"))
	})
	res := &testRes{}
	out, err := d.Dispatch("/api/x", &testReq{}, res, downstream(res))
	require.NoError(t, err)
	assert.Equal(t, []string{"H1", "H2", "after"}, res.notes)
	assert.Equal(t, Outcome{Proceeded: false, VetoedBy: "H2", Stage: StageDone}, out)
}

func TestDispatchSkipsNonMatchingHandlers(t *testing.T) {
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(say("private", false), Name("private"), Paths("/api/private/**"))
		r.Before(say("all", true), Name("all"), Order(1))
		r.After(say("public-after", true), Paths("/api/public/**"))
	})
	res := &testRes{}
	out, err := d.Dispatch("/api/public/info", &testReq{}, res, downstream(res))
	require.NoError(t, err)
	assert.True(t, out.Proceeded)
	assert.Equal(t, []string{"all", "downstream", "public-after"}, res.notes)
}

func TestDispatchAfterRunsExactlyOnce(t *testing.T) {
	for _, veto := range []bool{false, true} {
		d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
			r.Before(say("gate", !veto))
			r.After(say("a", true), Order(1))
			r.After(say("b", false), Order(2))
			r.After(say("c", true), Order(3))
		})
		res := &testRes{}
		out, err := d.Dispatch("/", &testReq{}, res, downstream(res))
		require.NoError(t, err)
		assert.Equal(t, !veto, out.Proceeded)
		if veto {
			assert.Equal(t, []string{"gate", "a", "b", "c"}, res.notes)
		} else {
			assert.Equal(t, []string{"gate", "downstream", "a", "b", "c"}, res.notes)
		}
	}
}

func TestDispatchNilDownstream(t *testing.T) {
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.After(say("after", true))
	})
	res := &testRes{}
	out, err := d.Dispatch("/", &testReq{}, res, nil)
	require.NoError(t, err)
	assert.True(t, out.Proceeded)
	assert.Equal(t, []string{"after"}, res.notes)
}

func TestDispatchErrorsAbort(t *testing.T) {
	boom := errors.New("boom")
	failing := func(w *testRes) (bool, error) { w.note("fail"); return true, boom }

	// Before handler fails: nothing else runs.
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(failing, Name("failing"))
		r.Before(say("next", true), Order(1))
		r.After(say("after", true))
	})
	res := &testRes{}
	out, err := d.Dispatch("/p", &testReq{}, res, downstream(res))
	assert.ErrorIs(t, err, boom)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, &DispatchError{Stage: StageBefore, Handler: "failing", Path: "/p", Cause: boom}, dispatchErr)
	assert.Equal(t, StageBefore, out.Stage)
	assert.Equal(t, []string{"fail"}, res.notes)
	assert.EqualError(t, err, "dispatch /p: before handler failing failed: boom")

	// Downstream fails: after phase does not run.
	d = newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(say("before", true))
		r.After(say("after", true))
	})
	res = &testRes{}
	out, err = d.Dispatch("/p", &testReq{}, res, func() error { return boom })
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, StageDownstream, dispatchErr.Stage)
	assert.Equal(t, StageDownstream, out.Stage)
	assert.True(t, out.Proceeded)
	assert.Equal(t, []string{"before"}, res.notes)
	assert.EqualError(t, err, "dispatch /p: downstream handler failed: boom")

	// After handler fails: later after handlers do not run.
	d = newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.After(failing, Name("failing"), Order(1))
		r.After(say("later", true), Order(2))
	})
	res = &testRes{}
	out, err = d.Dispatch("/p", &testReq{}, res, nil)
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, StageAfter, dispatchErr.Stage)
	assert.Equal(t, StageAfter, out.Stage)
	assert.Equal(t, []string{"fail"}, res.notes)
}

func TestDispatchRecoversPanics(t *testing.T) {
	first := say("first", true)
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(first, Name("first"), Order(1))
		r.Before(func(r *testReq) bool { panic("oh no") }, Name("panicky"), Order(2))
		r.Before(say("never", true), Order(3))
		r.After(say("never-after", true))
	})
	res := &testRes{}
	_, err := d.Dispatch("/x", &testReq{}, res, downstream(res))
	require.Error(t, err)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "oh no", pe.Val)
	require.Len(t, pe.Executed, 2)
	assert.Equal(t, pe.Handler.Name, pe.Executed[0].Name)
	// Compiled closure names vary with inlining, so compare code pointers.
	assert.Equal(t, reflect.ValueOf(first).Pointer(), pe.Executed[1].Func.Pointer())
	assert.Equal(t, []string{"first"}, res.notes)
	assert.Contains(t, err.Error(), "Panic executing handler")
	assert.Contains(t, err.Error(), "oh no")
	assert.Contains(t, pe.RawStack, "TestDispatchRecoversPanics")
}

func TestDispatcherOwnsItsSnapshot(t *testing.T) {
	r := NewRegistry[*testReq, *testRes]()
	r.Before(say("b", true), Name("b"))
	r.After(say("a", true), Name("a"))
	require.NoError(t, r.Finalize())
	d, err := NewDispatcher(r)
	require.NoError(t, err)

	before, err := r.ForPhase(Before)
	require.NoError(t, err)
	before[0] = nil

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := &testRes{}
			_, err := d.Dispatch("/x", &testReq{}, res, downstream(res))
			assert.NoError(t, err)
			assert.Equal(t, []string{"b", "downstream", "a"}, res.notes)
			_, err = r.ForPhase(After)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestDispatchRecoversDownstreamPanic(t *testing.T) {
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.After(say("after", true))
	})
	res := &testRes{}
	_, err := d.Dispatch("/x", &testReq{}, res, func() error { panic(errors.New("kaboom")) })
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "downstream", pe.Handler.Name)
	assert.Empty(t, res.notes)
}

func TestDispatchIsDeterministic(t *testing.T) {
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(func(r *testReq, w *testRes) bool { w.note("auth"); return r.user != "" },
			Name("auth"), Paths("/api/private/**"))
		r.After(say("status", true))
	})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := ""
			if i%2 == 0 {
				user = "amy"
			}
			res := &testRes{}
			out, err := d.Dispatch("/api/private/data", &testReq{user: user}, res, downstream(res))
			assert.NoError(t, err)
			assert.Equal(t, user != "", out.Proceeded)
			if user == "" {
				assert.Equal(t, "auth", out.VetoedBy)
				assert.Equal(t, []string{"auth", "status"}, res.notes)
			} else {
				assert.Equal(t, []string{"auth", "downstream", "status"}, res.notes)
			}
		}(i)
	}
	wg.Wait()
}

type handlerCall struct {
	name    string
	phase   Phase
	proceed bool
	err     bool
}

type fakeObserver struct {
	mu       sync.Mutex
	calls    []handlerCall
	outcomes []Outcome
	errs     []error
}

func (o *fakeObserver) HandlerDone(name string, phase Phase, proceed bool, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, handlerCall{name, phase, proceed, err != nil})
}

func (o *fakeObserver) DispatchDone(_ string, out Outcome, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
	o.errs = append(o.errs, err)
}

func TestDispatchObserver(t *testing.T) {
	var obs fakeObserver
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(say("ok", true), Name("ok"), Order(1))
		r.Before(say("deny", false), Name("deny"), Order(2))
		r.After(say("after", false), Name("after"))
	}, WithObserver(&obs), WithLogger(logger))

	res := &testRes{}
	_, err := d.Dispatch("/x", &testReq{}, res, downstream(res))
	require.NoError(t, err)

	assert.Equal(t, []handlerCall{
		{"ok", Before, true, false},
		{"deny", Before, false, false},
		{"after", After, false, false},
	}, obs.calls)
	assert.Equal(t, []Outcome{{VetoedBy: "deny", Stage: StageDone}}, obs.outcomes)
	assert.Equal(t, []error{nil}, obs.errs)
	assert.Contains(t, logs.String(), "request vetoed")
	assert.Contains(t, logs.String(), "handler=deny")
}

// The logging, auth and logStatus sample pipeline: an unauthenticated call
// to a private endpoint is logged, rejected with 401 and the status logger
// sees the rejection.
func TestDispatchScenario(t *testing.T) {
	var seen []string
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(func(r *testReq) bool { seen = append(seen, "logging"); return true },
			Name("logging"), Order(1), Paths("**"))
		r.Before(func(r *testReq, w *testRes) bool {
			seen = append(seen, "auth")
			if r.user == "" {
				w.status = 401
				return false
			}
			return true
		}, Name("auth"), Order(2), Paths("/api/private/**"))
		r.After(func(w *testRes) bool {
			seen = append(seen, "logStatus")
			w.note(fmt.Sprintf("status %d", w.status))
			return true
		}, Name("logStatus"), Order(1), Paths("**"))
	})

	res := &testRes{}
	out, err := d.Dispatch("/api/private/data", &testReq{}, res, func() error {
		seen = append(seen, "downstream")
		res.status = 200
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"logging", "auth", "logStatus"}, seen)
	assert.Equal(t, Outcome{VetoedBy: "auth", Stage: StageDone}, out)
	assert.Equal(t, []string{"status 401"}, res.notes)
}

func TestDispatchOnVeto(t *testing.T) {
	d := newDispatcher(t, func(r *Registry[*testReq, *testRes]) {
		r.Before(say("deny", false), Name("deny"))
		r.After(func(w *testRes) bool { w.note(fmt.Sprint(w.status)); return true })
	}, OnVeto(func(name string, r *testReq, w *testRes) {
		w.note("vetoed by " + name)
		w.status = 403
	}))
	res := &testRes{}
	_, err := d.Dispatch("/", &testReq{}, res, downstream(res))
	require.NoError(t, err)
	assert.Equal(t, []string{"deny", "vetoed by deny", "403"}, res.notes)
}

func TestDispatchOnVetoTypeMismatch(t *testing.T) {
	r := NewRegistry[*testReq, *testRes]()
	require.NoError(t, r.Finalize())
	_, err := NewDispatcher(r, OnVeto(func(string, *testRes, *testReq) {}))
	assert.ErrorContains(t, err, "veto callback")
}
