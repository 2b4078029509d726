// Package mux_bookends is a gorilla/mux adapter for bookends.
package mux_bookends

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/augustoroman/bookends"
)

// Middleware returns a mux middleware that runs the stack around matched
// routes:
//
//	r := mux.NewRouter()
//	r.Use(mux_bookends.Middleware(s))
//
// The route variables are available to the stack's handlers through
// mux.Vars.
func Middleware(s *bookends.Stack) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return s.Then(next)
	}
}
