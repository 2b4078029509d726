// Package pipeline is the transport-independent core of bookends: a registry
// of ordered, path-scoped handlers that run before and after a downstream
// handler.
//
// Handlers are plain functions that accept whichever of the two per-request
// values they need, in any order, and return whether the request may
// continue:
//
//	reg := pipeline.NewRegistry[*http.Request, http.ResponseWriter]()
//	reg.Before(func(r *http.Request) bool { log.Print(r.URL); return true }, pipeline.Order(1))
//	reg.Before(requireLogin, pipeline.Order(2), pipeline.Paths("/api/private/**"))
//	reg.After(func(w http.ResponseWriter) bool { ...; return true })
//	if err := reg.Finalize(); err != nil { ... }
//	d, err := pipeline.NewDispatcher(reg)
//
// Signatures are checked when a handler is registered, so a handler that asks
// for something the dispatcher can't supply is a startup error rather than a
// failed request.
//
// For each request, Dispatch runs the matching before handlers in order until
// one returns false, then the downstream handler if nobody objected, and then
// every matching after handler.
package pipeline
