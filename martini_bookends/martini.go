// Package martini_bookends is a martini-adapter for bookends that runs a
// bookends.Stack as martini middleware.
package martini_bookends

import (
	"net/http"

	"github.com/go-martini/martini"

	"github.com/augustoroman/bookends"
)

// Handler returns a martini handler that runs the stack around the rest of
// the martini handler chain. Use it globally:
//
//	m := martini.Classic()
//	m.Use(martini_bookends.Handler(s))
//
// or for a single route:
//
//	m.Get("/admin/:page", martini_bookends.Handler(admin), showPage)
//
// Later handlers that ask for an http.ResponseWriter or an *http.Request get
// the ones the stack's handlers saw, so the response status is tracked.
// When a before handler stops the request, the rest of the chain does not run.
func Handler(s *bookends.Stack) martini.Handler {
	return func(c martini.Context, w http.ResponseWriter, r *http.Request) {
		s.Serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.MapTo(w, (*http.ResponseWriter)(nil))
			c.Map(r)
			c.Next()
		}))
	}
}
