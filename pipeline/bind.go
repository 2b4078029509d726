package pipeline

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type capability uint8

const (
	capRequest capability = iota + 1
	capResponse
)

// binder checks handler signatures against the two values a dispatch can
// supply and turns each handler into a plain func(Req, Res) (bool, error).
type binder[Req, Res any] struct {
	reqType, resType reflect.Type
}

func newBinder[Req, Res any]() binder[Req, Res] {
	b := binder[Req, Res]{
		reqType: reflect.TypeOf((*Req)(nil)).Elem(),
		resType: reflect.TypeOf((*Res)(nil)).Elem(),
	}
	if b.reqType == b.resType {
		panic(fmt.Errorf("request and response types must differ, both are %s", b.reqType))
	}
	return b
}

func (b binder[Req, Res]) bind(name string, fn FuncInfo) (func(Req, Res) (bool, error), error) {
	t := fn.Func.Type()
	caps, err := b.params(name, t)
	if err != nil {
		return nil, err
	}
	returnsErr, err := checkReturns(name, t)
	if err != nil {
		return nil, err
	}
	if call := b.direct(fn.Func.Interface()); call != nil {
		return call, nil
	}
	return reflectCall[Req, Res](fn.Func, caps, returnsErr), nil
}

func (b binder[Req, Res]) params(name string, t reflect.Type) ([]capability, error) {
	shapeErr := func(pos int, reason string) error {
		return &ShapeError{
			Handler:   name,
			Signature: t,
			Position:  pos,
			Type:      t.In(pos - 1),
			Reason:    reason,
			kind:      ErrUnsupportedParameterShape,
		}
	}
	if t.IsVariadic() {
		return nil, shapeErr(t.NumIn(), "variadic parameters are not supported")
	}
	if t.NumIn() > 2 {
		return nil, shapeErr(3, fmt.Sprintf("at most two parameters (%s, %s) may be declared", b.reqType, b.resType))
	}
	caps := make([]capability, t.NumIn())
	for i := range caps {
		switch t.In(i) {
		case b.reqType:
			caps[i] = capRequest
		case b.resType:
			caps[i] = capResponse
		default:
			return nil, shapeErr(i+1, fmt.Sprintf("only %s and %s may be declared", b.reqType, b.resType))
		}
	}
	if len(caps) == 2 && caps[0] == caps[1] {
		return nil, shapeErr(2, "the same type may not be declared twice")
	}
	return caps, nil
}

func checkReturns(name string, t reflect.Type) (returnsErr bool, err error) {
	bad := func(typ reflect.Type) error {
		return &ShapeError{
			Handler:   name,
			Signature: t,
			Type:      typ,
			Reason:    "handlers must return bool or (bool, error)",
			kind:      ErrUnsupportedReturnShape,
		}
	}
	switch t.NumOut() {
	case 0:
		return false, bad(nil)
	case 1, 2:
		if t.Out(0).Kind() != reflect.Bool {
			return false, bad(t.Out(0))
		}
		if t.NumOut() == 2 {
			if t.Out(1) != errorType {
				return false, bad(t.Out(1))
			}
			return true, nil
		}
		return false, nil
	}
	return false, bad(t.Out(2))
}

// direct binds the common literal signatures without going through reflection
// on every call.
func (b binder[Req, Res]) direct(fn any) func(Req, Res) (bool, error) {
	switch f := fn.(type) {
	case func() bool:
		return func(Req, Res) (bool, error) { return f(), nil }
	case func(Req) bool:
		return func(req Req, _ Res) (bool, error) { return f(req), nil }
	case func(Res) bool:
		return func(_ Req, res Res) (bool, error) { return f(res), nil }
	case func(Req, Res) bool:
		return func(req Req, res Res) (bool, error) { return f(req, res), nil }
	case func(Res, Req) bool:
		return func(req Req, res Res) (bool, error) { return f(res, req), nil }
	case func() (bool, error):
		return func(Req, Res) (bool, error) { return f() }
	case func(Req) (bool, error):
		return func(req Req, _ Res) (bool, error) { return f(req) }
	case func(Res) (bool, error):
		return func(_ Req, res Res) (bool, error) { return f(res) }
	case func(Req, Res) (bool, error):
		return f
	case func(Res, Req) (bool, error):
		return func(req Req, res Res) (bool, error) { return f(res, req) }
	}
	return nil
}

func reflectCall[Req, Res any](fn reflect.Value, caps []capability, returnsErr bool) func(Req, Res) (bool, error) {
	return func(req Req, res Res) (bool, error) {
		in := make([]reflect.Value, len(caps))
		for i, c := range caps {
			// Going through a pointer keeps the static type for nil interfaces.
			if c == capRequest {
				in[i] = reflect.ValueOf(&req).Elem()
			} else {
				in[i] = reflect.ValueOf(&res).Elem()
			}
		}
		out := fn.Call(in)
		proceed := out[0].Bool()
		if returnsErr && !out[1].IsNil() {
			return proceed, out[1].Interface().(error)
		}
		return proceed, nil
	}
}

func ordinalize(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
