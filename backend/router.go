package backend

import (
	"sort"

	"github.com/resourcedb/resourcedb"
)

type route struct {
	pattern resourcedb.TypePattern
	backend Backend
}

// Router maps resource type patterns to backend instances. Resolution picks
// the route with the longest matching prefix and falls back to the default
// backend, so a single hot type can be moved to a dedicated engine without
// callers noticing.
type Router struct {
	routes []route
	def    Backend
}

// NewRouter returns a router that sends everything to def until routes are
// added.
func NewRouter(def Backend) *Router {
	return &Router{def: def}
}

// Route directs types covered by pattern to b. Routes are fixed at
// configuration time; Route is not safe to call once the router is serving.
func (r *Router) Route(pattern resourcedb.TypePattern, b Backend) {
	r.routes = append(r.routes, route{pattern: pattern, backend: b})
	// longest prefix first so the most specific route wins
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].pattern.Prefix()) > len(r.routes[j].pattern.Prefix())
	})
}

// For resolves the backend serving the given type or pattern. A route fully
// covering the request wins over one that merely overlaps it, so a broad
// listing stays on the backend that holds all of its types.
func (r *Router) For(pattern resourcedb.TypePattern) Backend {
	for _, rt := range r.routes {
		if eff, ok := rt.pattern.Intersect(pattern); ok && eff == pattern {
			return rt.backend
		}
	}
	for _, rt := range r.routes {
		if _, ok := rt.pattern.Intersect(pattern); ok {
			return rt.backend
		}
	}
	return r.def
}

// Default returns the fallback backend.
func (r *Router) Default() Backend {
	return r.def
}

// Backends returns every distinct backend the router can resolve to. Used by
// the retention task to sweep each engine exactly once.
func (r *Router) Backends() []Backend {
	seen := map[Backend]struct{}{r.def: {}}
	out := []Backend{r.def}
	for _, rt := range r.routes {
		if _, ok := seen[rt.backend]; ok {
			continue
		}
		seen[rt.backend] = struct{}{}
		out = append(out, rt.backend)
	}
	return out
}
