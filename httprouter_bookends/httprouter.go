// Package httprouter_bookends is a httprouter-adapter for bookends that runs
// a bookends.Stack around httprouter handles.
package httprouter_bookends

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/augustoroman/bookends"
)

// Handle wraps h with the stack. httprouter expects a function rather than a
// particular interface, so use it when registering routes:
//
//	s := bookends.TheUsual().Before(requireLogin, pipeline.Paths("/user/**"))
//	m := httprouter.New()
//	m.GET("/user/:id/", httprouter_bookends.Handle(s, getUser))
//
// The route parameters are also available to the stack's handlers through
// Params.
func Handle(s *bookends.Stack, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		r = r.WithContext(context.WithValue(r.Context(), httprouter.ParamsKey, p))
		s.Serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h(w, r, p)
		}))
	}
}

// Params returns the route parameters of a request served through Handle.
func Params(r *http.Request) httprouter.Params {
	return httprouter.ParamsFromContext(r.Context())
}
