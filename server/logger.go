package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// accessLog formats chi request log entries through a printf-style logger.
type accessLog struct {
	logf func(format string, args ...any)
}

func (a *accessLog) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &accessEntry{
		logf:      a.logf,
		method:    r.Method,
		path:      r.URL.Path,
		remote:    r.RemoteAddr,
		requestID: middleware.GetReqID(r.Context()),
	}
}

type accessEntry struct {
	logf      func(format string, args ...any)
	method    string
	path      string
	remote    string
	requestID string
}

func (e *accessEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	e.logf("http: %s %s %d %dB in %s (remote=%s id=%s)", e.method, e.path, status, bytes, elapsed, e.remote, e.requestID)
}

func (e *accessEntry) Panic(v any, stack []byte) {
	e.logf("http: %s %s panic: %v\n%s", e.method, e.path, v, stack)
}
