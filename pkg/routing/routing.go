// Package routing implements the gateway route table: an ordered set of
// path templates with per-segment requirements, matched against inbound
// requests in registration order.
package routing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/morezero/cluster-gateway/pkg/handlers"
)

const logPrefix = "routing:table"

// ActionAdd tags routes that add a member to an existing collection. The
// dispatcher answers such PUTs with 200 instead of 201.
const ActionAdd = "add"

// defaultRequirement matches a single path segment.
const defaultRequirement = `[^/]+`

// segmentRx finds {name} variables in a path template.
var segmentRx = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Route is one registered rule. Either Handler (a direct callable) or
// Controller (a registry name) identifies the target; Handler wins when
// both are set. Routes are immutable once registered.
type Route struct {
	Pattern      string
	Methods      []string
	Requirements map[string]string
	Handler      handlers.Handler
	Controller   string
	Action       string

	re       *regexp.Regexp
	segments []string
}

// MatchResult binds the concrete segment values for one request to the
// route that matched. It lives for the duration of that request only.
type MatchResult struct {
	Route  *Route
	Params map[string]string
}

// Table is an ordered route table. Register all routes at startup; Match
// is safe for unsynchronized concurrent use afterwards.
type Table struct {
	routes []*Route
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{}
}

// Register adds a route. Duplicate patterns are allowed; Match resolves
// ties by registration order. Requirements default to a single-segment
// match for any named segment they do not cover.
func (t *Table) Register(r Route) error {
	if r.Pattern == "" {
		return fmt.Errorf("%s - route pattern must not be empty", logPrefix)
	}

	segments := []string{}
	for _, m := range segmentRx.FindAllStringSubmatch(r.Pattern, -1) {
		segments = append(segments, m[1])
	}
	for name := range r.Requirements {
		known := false
		for _, seg := range segments {
			if seg == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf(
				"%s - requirement %q does not name a segment of %q",
				logPrefix, name, r.Pattern)
		}
	}

	re, err := compilePattern(r.Pattern, segments, r.Requirements)
	if err != nil {
		return fmt.Errorf("%s - compile %q: %w", logPrefix, r.Pattern, err)
	}

	methods := make([]string, len(r.Methods))
	for i, m := range r.Methods {
		methods[i] = strings.ToUpper(m)
	}

	route := r
	route.Methods = methods
	route.re = re
	route.segments = segments
	t.routes = append(t.routes, &route)

	slog.Debug(fmt.Sprintf("%s - registered route %q methods=%v action=%q",
		logPrefix, r.Pattern, methods, r.Action))
	return nil
}

// Match scans the table in registration order and returns the first route
// whose pattern and method constraint both accept the request, or nil when
// nothing matches. No slash normalization is applied.
func (t *Table) Match(path, method string) *MatchResult {
	method = strings.ToUpper(method)
	for _, route := range t.routes {
		m := route.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		if !route.allowsMethod(method) {
			continue
		}

		params := make(map[string]string, len(route.segments))
		for i, name := range route.re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			params[name] = m[i]
		}

		slog.Debug(fmt.Sprintf("%s - matched %q %s to %q",
			logPrefix, path, method, route.Pattern))
		return &MatchResult{Route: route, Params: params}
	}

	slog.Debug(fmt.Sprintf("%s - no route matched %q %s", logPrefix, path, method))
	return nil
}

func (r *Route) allowsMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// compilePattern translates a {name} template into an anchored regexp with
// one named group per segment.
func compilePattern(pattern string, segments []string, requirements map[string]string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	rest := pattern
	for _, seg := range segments {
		marker := "{" + seg + "}"
		idx := strings.Index(rest, marker)
		b.WriteString(regexp.QuoteMeta(rest[:idx]))

		rx := requirements[seg]
		if rx == "" {
			rx = defaultRequirement
		}
		fmt.Fprintf(&b, "(?P<%s>%s)", seg, rx)
		rest = rest[idx+len(marker):]
	}
	b.WriteString(regexp.QuoteMeta(rest))
	b.WriteString("$")

	return regexp.Compile(b.String())
}
