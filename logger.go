package bookends

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/nrednav/cuid2"
)

// Injected for testing
var (
	time_Now               = time.Now
	os_Stderr    io.Writer = colorable.NewColorable(os.Stderr)
	useColor               = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	newRequestID           = cuid2.Generate
)

// LogEntry is the information tracked on a per-request basis for the bookends
// request log.  All fields other than Note are automatically filled in.  The
// Note field is a generic key-value string map for adding additional
// per-request metadata to the logs.  Handlers find the entry of their request
// with EntryFrom.
//
// For example:
//
//	func MyAuthCheck(r *http.Request) bool {
//	    user := decodeAuthCookie(r)
//	    if e := bookends.EntryFrom(r); e != nil && user != nil {
//	        e.Note["user"] = user.Id()  // indicate which user is auth'd
//	    }
//	    return user != nil
//	}
type LogEntry struct {
	ID           string // unique per request
	RemoteIp     string
	Start        time.Time
	Request      *http.Request
	StatusCode   int
	ResponseSize int
	Elapsed      time.Duration
	Error        error
	// the before handler that stopped the request, if any
	VetoedBy string
	Note     map[string]string
	// set to true to suppress logging this request
	Quiet bool
}

type entryKey struct{}

func withEntry(ctx context.Context, e *LogEntry) context.Context {
	return context.WithValue(ctx, entryKey{}, e)
}

// EntryFrom returns the log entry of the request, or nil if the request log is
// not enabled.
func EntryFrom(r *http.Request) *LogEntry {
	e, _ := r.Context().Value(entryKey{}).(*LogEntry)
	return e
}

// NoLog is a before handler that suppresses log output for this request.
// For example:
//
//	// suppress logging of the favicon request to reduce log spam.
//	stack.Before(bookends.NoLog, pipeline.Paths("/favicon.ico"))
//
// This depends on WriteLog respecting the Quiet flag, which the default
// implementation does.
func NoLog(r *http.Request) bool {
	if e := EntryFrom(r); e != nil {
		e.Quiet = true
	}
	return true
}

// NewLogEntry creates a *LogEntry and initializes it with basic request
// information.
func NewLogEntry(r *http.Request) *LogEntry {
	return &LogEntry{
		ID:       newRequestID(),
		RemoteIp: remoteIp(r),
		Start:    time_Now(),
		Request:  r,
		Note:     map[string]string{},
	}
}

// Commit fills in the remaining *LogEntry fields and writes the entry out.
func (entry *LogEntry) Commit(w *ResponseWriter) {
	entry.Elapsed = time_Now().Sub(entry.Start)
	entry.ResponseSize = w.Size
	entry.StatusCode = w.Code
	WriteLog(*entry)
}

// Some nice escape codes
const (
	_GREEN  = "\033[32m"
	_YELLOW = "\033[33m"
	_RESET  = "\033[0m"
	_RED    = "\033[91m"
)

// WriteLog is called to actually write a LogEntry out to the log. By default,
// it writes to stderr and, when stderr is a terminal, colors normal requests
// green, slow requests yellow, and errors red.  You can replace the function
// to adjust the formatting or use whatever logging library you like.
var WriteLog = func(e LogEntry) {
	if e.Quiet {
		return
	}
	col, reset := logColors(e)
	fmt.Fprintf(os_Stderr, "%s%s %s %s \"%s %s\" (%d %dB %s) %s%s\n",
		col,
		e.Start.Format(time.RFC3339), e.ID, e.RemoteIp,
		e.Request.Method, e.Request.RequestURI,
		e.StatusCode, e.ResponseSize, e.Elapsed,
		e.NotesAndError(),
		reset)
}

// NotesAndError formats the veto, the Note values and error (if any) for
// logging.
func (l LogEntry) NotesAndError() string {
	pairs := make([]string, 0, len(l.Note)+1)
	for k, v := range l.Note {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, v))
	}
	sort.Strings(pairs)
	if l.VetoedBy != "" {
		pairs = append([]string{fmt.Sprintf("vetoed-by=%q", l.VetoedBy)}, pairs...)
	}
	msg := strings.Join(pairs, " ")
	if l.Error != nil {
		msg += "\n  ERROR: " + l.Error.Error()
	}
	return msg
}

func logColors(e LogEntry) (start, reset string) {
	if !useColor {
		return "", ""
	}
	col, reset := _GREEN, _RESET
	if e.Elapsed > 30*time.Millisecond {
		col = _YELLOW
	}
	if e.StatusCode >= 400 || e.Error != nil {
		col = _RED
	}
	return col, reset
}

// remoteIp extracts the remote IP from the request.  Adapted from code in
// Martini:
//
//	https://github.com/go-martini/martini/blob/1d33529c15f19/logger.go#L14..L20
func remoteIp(r *http.Request) string {
	if addr := r.Header.Get("X-Real-IP"); addr != "" {
		return addr
	} else if addr := r.Header.Get("X-Forwarded-For"); addr != "" {
		return addr
	}
	return r.RemoteAddr
}
