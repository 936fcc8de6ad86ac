// Package router implements the registry's regex-based HTTP dispatcher:
// an ordered list of routes, each either an entire-match ("support") or
// prefix-match ("mount") regex with named captures, checked in
// declaration order. A handler's boolean return decides whether
// dispatch stops (false) or continues into later routes (true); a
// path match with the wrong method sets 405 (once) and an accumulated
// Allow header, but does not stop the scan. No pack HTTP framework
// (gin, a stdlib ServeMux) implements that continue-past-mismatch
// chain-of-responsibility semantics, so this stays a small
// regexp-plus-net/http component rather than an adopted library.
package router

import (
	"bytes"
	"net/http"
	"regexp"
)

// Handler is invoked when its route's pattern (and method) match. relPath
// is the remainder of the path left unconsumed by this route (empty for a
// "support" route, which consumes the whole path; the suffix after a
// "mount" route's matched prefix). params carries every named capture
// accumulated by this route and every enclosing mount, with this
// route's own captures taking precedence on name collisions. Returning
// false stops dispatch; true lets later routes in the same router still
// be tried.
type Handler func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool

// ExceptionHandler is invoked when a Handler panics; it receives the
// recovered value. If it also panics, the panic propagates to the
// caller of ServeHTTP.
type ExceptionHandler func(w http.ResponseWriter, r *http.Request, recovered interface{})

type matchMode int

const (
	matchPrefix matchMode = iota
	matchEntire
)

type route struct {
	pattern *regexp.Regexp
	mode    matchMode
	method  string // "" matches any method
	handler Handler
}

// Router is an ordered collection of routes.
type Router struct {
	routes    []route
	exception ExceptionHandler
}

// New returns an empty Router.
func New() *Router { return &Router{} }

// Support appends an entire-match route: pattern must match the whole
// relative path. An empty method matches any HTTP method.
func (rt *Router) Support(pattern, method string, h Handler) {
	rt.routes = append(rt.routes, route{
		pattern: regexp.MustCompile("^(?:" + pattern + ")$"),
		mode:    matchEntire,
		method:  method,
		handler: h,
	})
}

// Mount appends a prefix-match route: pattern matches a leading portion
// of the relative path, and the handler receives the remainder as its
// own relative path — the idiom used to nest one API version's
// sub-router under its parent.
func (rt *Router) Mount(pattern, method string, h Handler) {
	rt.routes = append(rt.routes, route{
		pattern: regexp.MustCompile("^(?:" + pattern + ")"),
		mode:    matchPrefix,
		method:  method,
		handler: h,
	})
}

// SetExceptionHandler installs the router's panic fallback.
func (rt *Router) SetExceptionHandler(h ExceptionHandler) { rt.exception = h }

// AsHandler adapts rt into a Handler, for mounting rt as a sub-router
// under a parent: the parent's Mount match computes the remaining path
// and merged parameters, then simply dispatches into rt.
func (rt *Router) AsHandler() Handler {
	return func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		rt.dispatch(w, r, relPath, params)
		return false
	}
}

// ServeHTTP implements http.Handler, buffering the response (status,
// headers, body) so that a provisional 405 set by one route can still
// be overridden by a later route that fully matches, then flushing it
// — unless a handler hijacked the connection (e.g. a WebSocket
// upgrade), in which case nothing further is written.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := newRecorder(w)
	rt.dispatch(rec, r, r.URL.Path, map[string]string{})
	if !rec.hijacked {
		rec.flush()
	}
}

func (rt *Router) dispatch(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) {
	for _, rte := range rt.routes {
		m := rte.pattern.FindStringSubmatchIndex(relPath)
		if m == nil {
			continue
		}
		captured := namedCaptures(rte.pattern, relPath, m)
		merged := mergeParams(params, captured)

		var remainder string
		if rte.mode == matchPrefix {
			remainder = relPath[m[1]:]
		}

		if rte.method == "" || rte.method == r.Method {
			if !rt.invoke(w, r, rte.handler, remainder, merged) {
				return
			}
			continue
		}

		if rec, ok := w.(*recorder); ok {
			rec.setStatusIfUnset(http.StatusMethodNotAllowed)
			rec.Header().Add("Allow", rte.method)
		}
	}
}

func namedCaptures(pattern *regexp.Regexp, s string, m []int) map[string]string {
	names := pattern.SubexpNames()
	out := make(map[string]string)
	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		lo, hi := m[2*i], m[2*i+1]
		if lo < 0 {
			continue
		}
		out[name] = s[lo:hi]
	}
	return out
}

// mergeParams combines a route's own captures with parameters already
// accumulated by enclosing mounts. The new (more specific) route's
// captures win on a name collision.
func mergeParams(existing, captured map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(captured))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range captured {
		merged[k] = v
	}
	return merged
}

func (rt *Router) invoke(w http.ResponseWriter, r *http.Request, h Handler, relPath string, params map[string]string) (cont bool) {
	defer func() {
		if err := recover(); err != nil {
			if rt.exception == nil {
				panic(err)
			}
			rt.exception(w, r, err)
			cont = false
		}
	}()
	return h(w, r, relPath, params)
}

// recorder buffers a response so a provisional status can still be
// overridden before anything reaches the underlying connection.
type recorder struct {
	real     http.ResponseWriter
	header   http.Header
	status   int
	interim  bool // status is a method-mismatch 405 a later handler may replace
	body     bytes.Buffer
	hijacked bool
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{real: w, header: make(http.Header)}
}

func (rr *recorder) Header() http.Header { return rr.header }

func (rr *recorder) WriteHeader(status int) {
	if rr.status == 0 || rr.interim {
		rr.status = status
		rr.interim = false
	}
}

func (rr *recorder) setStatusIfUnset(status int) {
	if rr.status == 0 {
		rr.status = status
		rr.interim = true
	}
}

func (rr *recorder) Write(b []byte) (int, error) {
	if rr.status == 0 || rr.interim {
		rr.status = http.StatusOK
		rr.interim = false
	}
	return rr.body.Write(b)
}

// Raw returns the real, unbuffered ResponseWriter, for a handler that
// must take over the connection directly (a WebSocket upgrade). The
// handler must call MarkHijacked via the recorder afterwards; Raw
// itself does not flush or copy any buffered state.
func Raw(w http.ResponseWriter) http.ResponseWriter {
	if rec, ok := w.(*recorder); ok {
		return rec.real
	}
	return w
}

// MarkHijacked tells the router the handler took over the connection
// itself, so ServeHTTP must not attempt to flush a buffered response
// afterward.
func MarkHijacked(w http.ResponseWriter) {
	if rec, ok := w.(*recorder); ok {
		rec.hijacked = true
	}
}

func (rr *recorder) flush() {
	dst := rr.real.Header()
	for k, v := range rr.header {
		dst[k] = v
	}
	status := rr.status
	if status == 0 {
		status = http.StatusNotFound
	}
	rr.real.WriteHeader(status)
	_, _ = rr.real.Write(rr.body.Bytes())
}
