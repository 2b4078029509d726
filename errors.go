package bookends

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/augustoroman/bookends/pipeline"
)

// Error is an error implementation that provides the ability to specify three
// things to the bookends error handler:
//   - The HTTP status code that should be used in the response.
//   - The client-facing message that should be sent.  Typically this is a
//     sanitized error message, such as "Internal Server Error".
//   - Internal debugging detail including a log message and the underlying
//     error that should be included in the server logs.
//
// Note that Cause may be nil.
type Error struct {
	Code      int
	ClientMsg string
	LogMsg    string
	Cause     error
}

func (e Error) Error() string {
	return fmt.Sprintf("[%d] %s: %v", e.Code, e.LogMsg, e.Cause)
}

func (e Error) Unwrap() error { return e.Cause }

// Done is a sentinel error value that a handler can return to abort the
// request without triggering the default error handling.  HandleError will not
// attempt to write any status code or client message, nor will it add the error
// to the log.
var Done = errors.New("<done>")

// ToError converts any error to an Error. An Error anywhere in the chain of
// err is used as is, a panic becomes a 500 with a "Panic" log message and
// anything else is a 500 "Failure".
func ToError(err error) Error {
	var e Error
	if errors.As(err, &e) {
		if e.Code == 0 {
			e.Code = http.StatusInternalServerError
		}
		return e
	}
	e = Error{Code: http.StatusInternalServerError, LogMsg: "Failure", Cause: err}
	var pe *pipeline.PanicError
	if errors.As(err, &pe) {
		e.LogMsg = "Panic"
	}
	var de *pipeline.DispatchError
	if errors.As(err, &de) {
		if de.Handler != "" {
			e.LogMsg = fmt.Sprintf("%s in %s handler %s", e.LogMsg, de.Stage, de.Handler)
		} else {
			e.LogMsg = fmt.Sprintf("%s in %s", e.LogMsg, de.Stage)
		}
		e.Cause = de.Cause
	}
	return e
}

func handleErrorCommon(r *http.Request, err error) Error {
	e := ToError(err)
	if e.ClientMsg == "" {
		e.ClientMsg = http.StatusText(e.Code)
	}
	if l := EntryFrom(r); l != nil && e.LogMsg != "" {
		msg := fmt.Sprintf("(%d) %s", e.Code, e.LogMsg)
		if e.Cause != nil {
			msg += ": " + e.Cause.Error()
		}
		l.Error = errors.New(msg)
	}
	return e
}

// HandleError is the default error handler of bookends.New and
// bookends.TheUsual. If the error is a bookends.Error, it responds with the
// specified status code and client message.  Otherwise, it responds with a
// 500.  In both cases, the underlying error is added to the request log.
//
// Nothing is written to the client if the response was already started.
//
// If the error is bookends.Done, HandleError does nothing.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, Done) {
		return
	}
	e := handleErrorCommon(r, err)
	if StatusOf(w) != 0 {
		return
	}
	http.Error(w, e.ClientMsg, e.Code)
}

// HandleErrorJson is identical to HandleError except that it responds to the
// client as JSON instead of plain text.  Again, detailed error info is added
// to the request log.
//
// If the error is bookends.Done, HandleErrorJson does nothing.
func HandleErrorJson(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, Done) {
		return
	}
	e := handleErrorCommon(r, err)
	if StatusOf(w) != 0 {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.Code)
	fmt.Fprintf(w, "{\"error\":%q}\n", e.ClientMsg)
}
