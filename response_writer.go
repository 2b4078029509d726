package bookends

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// WrapResponseWriter creates a ResponseWriter that tracks the response
// written through w.
func WrapResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{w, 0, 0}
}

// ResponseWriter wraps http.ResponseWriter to add tracking of the response size
// and response code. Every handler run by a Stack that accepts an
// http.ResponseWriter receives one.
type ResponseWriter struct {
	http.ResponseWriter
	Size int // The size of the response written so far, in bytes.
	Code int // The status code of the response, or 0 if not written yet.
}

// StatusOf returns the status code written to w so far, or 0 if nothing has
// been written or w is not a *ResponseWriter. After handlers use it to see how
// the request ended:
//
//	func logStatus(w http.ResponseWriter) bool {
//	    log.Printf("status %d", bookends.StatusOf(w))
//	    return true
//	}
func StatusOf(w http.ResponseWriter) int {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw.Code
	}
	return 0
}

func (w *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("the ResponseWriter doesn't support the Hijacker interface")
	}
	return hijacker.Hijack()
}

func (w *ResponseWriter) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		if w.Code == 0 {
			w.Code = http.StatusOK
		}
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *ResponseWriter) WriteHeader(code int) {
	if w.Code == 0 {
		w.Code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *ResponseWriter) Write(p []byte) (int, error) {
	if w.Code == 0 {
		w.Code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.Size += n
	return n, err
}
