package httpd

import (
	"sort"
	"strings"
)

// Hook handles a matched (method, path). It must not retain req.
type Hook func(req *Request) Result

// RouteKey identifies a route by method and exact path.
type RouteKey struct {
	Method string
	Path   string
}

func (k RouteKey) String() string {
	return k.Method + " " + k.Path
}

// RouteBuilder collects routes at startup.
type RouteBuilder struct {
	routes map[RouteKey]Hook
}

// NewRouteBuilder returns an empty builder.
func NewRouteBuilder() *RouteBuilder {
	return &RouteBuilder{routes: make(map[RouteKey]Hook)}
}

// Handle registers hook for method and path. A later call for the same key
// replaces the earlier one.
func (b *RouteBuilder) Handle(method, path string, hook Hook) *RouteBuilder {
	b.routes[RouteKey{Method: strings.ToUpper(method), Path: path}] = hook
	return b
}

// Build freezes the collected routes into a table.
func (b *RouteBuilder) Build() *RouteTable {
	routes := make(map[RouteKey]Hook, len(b.routes))
	for k, v := range b.routes {
		routes[k] = v
	}
	return &RouteTable{routes: routes}
}

// RouteTable is an immutable exact-match route set.
type RouteTable struct {
	routes map[RouteKey]Hook
}

// Lookup finds the hook registered for method and path.
func (t *RouteTable) Lookup(method, path string) (Hook, bool) {
	if t == nil {
		return nil, false
	}
	hook, ok := t.routes[RouteKey{Method: method, Path: path}]
	return hook, ok
}

// Keys lists registered routes in a stable order.
func (t *RouteTable) Keys() []RouteKey {
	keys := make([]RouteKey, 0, len(t.routes))
	for k := range t.routes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Method < keys[j].Method
	})
	return keys
}

// Len returns the number of routes.
func (t *RouteTable) Len() int {
	return len(t.routes)
}
