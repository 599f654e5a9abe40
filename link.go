package blueprint

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gorilla/mux"
)

// Link is a named, parameterized route from a resource (or from nowhere) to an
// operation.
type Link struct {
	// Operation is the descriptor the link was created against.
	Operation *OperationDescriptor

	// URLFormat is the relative URL template, e.g. "widgets/{Id}".
	URLFormat string

	// Rel names the relationship, e.g. "self".
	Rel string

	// ResourceType is the resource the link is attached to, or nil.
	ResourceType reflect.Type

	// Source records where the link was declared; it defaults to the owning
	// descriptor's Source.
	Source string

	route *mux.Route
}

// NewLink creates a link for op. The URL template uses gorilla/mux syntax and
// is validated here.
func NewLink(op *OperationDescriptor, urlFormat, rel string, resourceType reflect.Type) (*Link, error) {
	if op == nil {
		return nil, fmt.Errorf("blueprint: link %q has no operation", urlFormat)
	}
	if rel == "" {
		return nil, fmt.Errorf("blueprint: link %q for %s has no rel", urlFormat, op.Name)
	}
	if resourceType != nil {
		for resourceType.Kind() == reflect.Pointer {
			resourceType = resourceType.Elem()
		}
	}

	route := mux.NewRouter().NewRoute().Path("/" + strings.TrimPrefix(urlFormat, "/"))
	if err := route.GetError(); err != nil {
		return nil, fmt.Errorf("blueprint: invalid link url %q for %s: %w", urlFormat, op.Name, err)
	}

	return &Link{
		Operation:    op,
		URLFormat:    strings.TrimPrefix(urlFormat, "/"),
		Rel:          rel,
		ResourceType: resourceType,
		Source:       op.Source,
		route:        route,
	}, nil
}

// Placeholders returns the variable names used in the URL template, in order.
func (l *Link) Placeholders() []string {
	names, err := l.route.GetVarNames()
	if err != nil {
		return nil
	}
	return names
}

// URL fills in the template's placeholders and returns the relative URL.
func (l *Link) URL(values map[string]string) (string, error) {
	names := l.Placeholders()
	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("blueprint: link %q: missing value for %q", l.URLFormat, name)
		}
		pairs = append(pairs, name, v)
	}
	u, err := l.route.URLPath(pairs...)
	if err != nil {
		return "", fmt.Errorf("blueprint: link %q: %w", l.URLFormat, err)
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}

func (l *Link) String() string {
	return l.Rel + " -> " + l.URLFormat
}
