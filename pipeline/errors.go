package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"text/tabwriter"
)

var (
	// ErrUnsupportedParameterShape is reported when a handler declares a
	// parameter the dispatcher cannot supply.
	ErrUnsupportedParameterShape = errors.New("unsupported parameter shape")
	// ErrUnsupportedReturnShape is reported when a handler does not return
	// bool or (bool, error).
	ErrUnsupportedReturnShape = errors.New("unsupported return shape")
	// ErrNotInitialized is returned when the registry is read before Finalize.
	ErrNotInitialized = errors.New("registry is not finalized")
	// ErrAlreadyFinalized is returned when the registry is modified after
	// Finalize.
	ErrAlreadyFinalized = errors.New("registry is already finalized")
	// ErrInvalidPattern is returned for empty path patterns.
	ErrInvalidPattern = errors.New("invalid path pattern")
)

// ShapeError describes a handler whose signature can't be bound. It wraps
// either ErrUnsupportedParameterShape or ErrUnsupportedReturnShape.
type ShapeError struct {
	Handler   string
	Signature reflect.Type
	// Position is the 1-based index of the offending parameter, or 0 when the
	// problem is with the return values.
	Position int
	// Type is the offending type. It is nil when a return value is missing.
	Type   reflect.Type
	Reason string
	kind   error
}

func (e *ShapeError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("handler %s (%s): %s parameter has unsupported type %s: %s",
			e.Handler, e.Signature, ordinalize(e.Position), e.Type, e.Reason)
	}
	if e.Type == nil {
		return fmt.Sprintf("handler %s (%s) has no return value: %s",
			e.Handler, e.Signature, e.Reason)
	}
	return fmt.Sprintf("handler %s (%s) has unsupported return type %s: %s",
		e.Handler, e.Signature, e.Type, e.Reason)
}

func (e *ShapeError) Unwrap() error { return e.kind }

// Stage is a step of a single dispatch.
type Stage uint8

const (
	StageBefore Stage = iota
	StageDownstream
	StageSkipped
	StageAfter
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageBefore:
		return "before"
	case StageDownstream:
		return "downstream"
	case StageSkipped:
		return "skipped"
	case StageAfter:
		return "after"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// DispatchError is returned by Dispatch when a handler or the downstream
// handler fails. The rest of the pipeline is not run.
type DispatchError struct {
	Stage   Stage
	Handler string // empty when the downstream handler failed
	Path    string
	Cause   error
}

func (e *DispatchError) Error() string {
	if e.Stage == StageDownstream {
		return fmt.Sprintf("dispatch %s: downstream handler failed: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("dispatch %s: %s handler %s failed: %v", e.Path, e.Stage, e.Handler, e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// PanicError is the error that is returned if a handler panics. It includes
// the panic'd value (Val), the raw Go stack trace (RawStack), the handler
// that panicked and the handlers already executed during the dispatch, most
// recent first.
type PanicError struct {
	Val      any
	RawStack string
	Handler  FuncInfo
	Executed []FuncInfo
}

func newPanicError(x any, fn FuncInfo) *PanicError {
	var stack [8192]byte
	n := runtime.Stack(stack[:], false)
	return &PanicError{Val: x, RawStack: string(stack[:n]), Handler: fn}
}

// FilteredStack returns the stack trace without the pipeline's own frames and
// without reflect.Value.call frames, since these are generally just noise.
func (p *PanicError) FilteredStack() []string {
	lines := strings.Split(p.RawStack, "\n")
	var filtered []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, "github.com/augustoroman/bookends/pipeline.") &&
			!strings.Contains(line, ").Dispatch(") {
			i++
			continue
		}
		if strings.HasPrefix(line, "reflect.Value.call") || strings.HasPrefix(line, "reflect.Value.Call") {
			i++
			continue
		}
		filtered = append(filtered, line)
	}
	return filtered
}

func (p *PanicError) Error() string {
	var executed bytes.Buffer
	w := tabwriter.NewWriter(&executed, 5, 7, 2, ' ', 0)
	for _, fn := range p.Executed {
		sig := "<nil>"
		if fn.Func.IsValid() {
			sig = fn.Func.Type().String()
		}
		fmt.Fprintf(w, "    %s\t%s\n", fn.Name, sig)
	}
	w.Flush()
	return fmt.Sprintf(
		"Panic executing handler %s: %v\n"+
			"  Handlers executed:\n%s"+
			"  Filtered call stack:\n    %s",
		p.Handler.Name, p.Val,
		executed.String(),
		strings.Join(p.FilteredStack(), "\n    "))
}
