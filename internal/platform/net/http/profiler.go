package http

import (
	stdhttp "net/http"
	"strings"

	mw "github.com/go-chi/chi/v5/middleware"
)

// MountProfiler exposes chi's pprof bundle under prefix (say "/debug")
// when enabled. Off by default: the ops port may be reachable beyond
// localhost and profiles leak more than operators expect
func MountProfiler(r Router, prefix string, enabled bool) {
	if !enabled {
		return
	}
	prefix = strings.TrimRight(prefix, "/")

	// the profiler carries its own mux, so strip our prefix on the way in
	h := stdhttp.StripPrefix(prefix, mw.Profiler())
	serve := func(w stdhttp.ResponseWriter, req *stdhttp.Request) { h.ServeHTTP(w, req) }

	r.Get(prefix, serve)
	r.Get(prefix+"/*", serve)
}
