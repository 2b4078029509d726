// Package bookends wraps your http.Handlers with handlers that run before and
// after them.
//
// Bookends lets you write request filters that are easily tested:
//   - Write your handlers to accept only what they need: the *http.Request,
//     the http.ResponseWriter, both (in either order) or neither.
//   - Stop a request by returning false from a before handler.
//   - Scope handlers to the paths they care about with Ant-style patterns
//     such as "/api/private/**".
//
// The routing-independent core lives in the pipeline package. This package
// hosts it on net/http, and the httprouter_bookends, martini_bookends and
// mux_bookends packages host it on other routers.
//
// # Example
//
// Here's a simple complete program using bookends:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//	    "net/http"
//
//	    "github.com/augustoroman/bookends"
//	)
//
//	func main() {
//	    stack := bookends.TheUsual()
//	    hello := func(w http.ResponseWriter, r *http.Request) {
//	        fmt.Fprintf(w, "Hello world!")
//	    }
//	    if err := http.ListenAndServe(":6060", stack.ThenFunc(hello)); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Before and after
//
// For each request, bookends:
//   - Runs every before handler whose paths match the request path, lowest
//     Order first, until one returns false.
//   - Calls the wrapped handler unless a before handler returned false.
//   - Runs every after handler whose paths match, lowest Order first. After
//     handlers always run, so they are the place for logging and cleanup.
//
// A before handler that returns false should write the response itself,
// usually an error status:
//
//	func RequireLogin(w http.ResponseWriter, r *http.Request) bool {
//	    if _, err := r.Cookie("session"); err != nil {
//	        http.Error(w, "Unauthorized", http.StatusUnauthorized)
//	        return false
//	    }
//	    return true
//	}
//
//	stack.Before(RequireLogin, pipeline.Order(2), pipeline.Paths("/api/private/**"))
//
// If it doesn't, bookends responds with 403 Forbidden (see Stack.VetoStatus)
// before the after handlers run.
//
// Handler signatures are checked when the handler is added, not when the
// request is served, so you don't get surprised while your server is running.
//
// # Error Handlers
//
// Handlers may also return (bool, error). When a handler returns an error or
// panics, bookends stops processing the request (after handlers included) and
// calls the error handler set with OnErr, HandleError by default. Return a
// bookends.Error to control the status code and the client message.
//
// # Request log
//
// TheUsual logs every request. Handlers add to the log through the request's
// *LogEntry:
//
//	func NoteUser(r *http.Request) bool {
//	    if e := bookends.EntryFrom(r); e != nil {
//	        e.Note["user"] = r.Header.Get("X-User")
//	    }
//	    return true
//	}
package bookends
