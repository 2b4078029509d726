package bookends

// Wrap pairs a before handler with an after handler that are registered under
// the same paths and order, such as starting and stopping a timer:
//
//	timing := bookends.Wrap{
//	    Before: func(r *http.Request) bool { start(r); return true },
//	    After:  func(r *http.Request) bool { stop(r); return true },
//	}
//	stack.Wrap(timing, pipeline.Paths("/api/**"))
//
// After runs for every request Before applied to, but also for requests
// where an earlier before handler vetoed the request and Before never ran.
// Either handler may be nil.
type Wrap struct {
	// Before runs ahead of the wrapped handler and may stop the request by
	// returning false.
	Before any
	// After runs once the wrapped handler is done or was skipped. Its return
	// value is ignored.
	After any
}
