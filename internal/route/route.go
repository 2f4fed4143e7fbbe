// Package route implements the immutable route table: selecting an
// upstream endpoint for a requested model name.
package route

import "fmt"

// Protocol identifies the wire protocol an upstream speaks.
type Protocol string

const (
	ProtocolAnthropic Protocol = "anthropic"
	ProtocolOpenAI    Protocol = "openai"
	ProtocolBedrock   Protocol = "bedrock"
)

// Route is an immutable mapping from a requested model name to an
// upstream endpoint and credentials.
type Route struct {
	Name             string
	RequestModel     string
	UpstreamProtocol Protocol
	UpstreamBaseURL  string
	UpstreamModel    string
	UpstreamAPIKey   string
	TimeoutSeconds   int
}

// NotFoundError is returned when no route matches a requested model.
type NotFoundError struct {
	Requested string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("route_not_found: no route for model %q", e.Requested)
}

// Table is an ordered, immutable sequence of routes, readable without
// synchronization once built.
type Table struct {
	routes []Route
}

// NewTable builds a route table, validating the §3 invariants: no two
// routes share a name, and a wildcard route appears at most once.
func NewTable(routes []Route) (*Table, error) {
	seenNames := make(map[string]bool, len(routes))
	wildcards := 0
	for _, r := range routes {
		if r.Name == "" {
			return nil, fmt.Errorf("route table: route with empty name")
		}
		if seenNames[r.Name] {
			return nil, fmt.Errorf("route table: duplicate route name %q", r.Name)
		}
		seenNames[r.Name] = true
		if r.Name == "*" || r.RequestModel == "*" {
			wildcards++
		}
	}
	if wildcards > 1 {
		return nil, fmt.Errorf("route table: more than one wildcard route")
	}

	cp := make([]Route, len(routes))
	copy(cp, routes)
	return &Table{routes: cp}, nil
}

// Match implements the deterministic §3 lookup rule:
//  1. first route with Name == requested
//  2. else first route with RequestModel == requested
//  3. else first route with Name == "*" or RequestModel == "*"
//  4. else NotFoundError
func (t *Table) Match(requested string) (Route, error) {
	for _, r := range t.routes {
		if r.Name == requested {
			return r, nil
		}
	}
	for _, r := range t.routes {
		if r.RequestModel == requested {
			return r, nil
		}
	}
	for _, r := range t.routes {
		if r.Name == "*" || r.RequestModel == "*" {
			return r, nil
		}
	}
	return Route{}, &NotFoundError{Requested: requested}
}

// List returns a stable copy of the table, for the /routes endpoint.
func (t *Table) List() []Route {
	cp := make([]Route, len(t.routes))
	copy(cp, t.routes)
	return cp
}
