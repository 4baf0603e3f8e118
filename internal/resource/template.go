// Package resource parses and formats Firestore resource names.
package resource

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMalformedName is wrapped by every parse failure.
var ErrMalformedName = errors.New("malformed resource name")

// Template is a resource path template such as
// "projects/{project}/databases/{database}". A variable written {name=**}
// may only appear last and matches one or more trailing segments.
type Template struct {
	raw      string
	segments []segment
}

type segment struct {
	literal  string
	variable string
	multi    bool
}

// NewTemplate parses a path template.
func NewTemplate(s string) (*Template, error) {
	if s == "" {
		return nil, fmt.Errorf("empty template")
	}
	t := &Template{raw: s}
	parts := strings.Split(s, "/")
	seen := map[string]bool{}
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("template %q: empty segment", s)
		}
		if !strings.HasPrefix(p, "{") {
			if strings.ContainsAny(p, "{}") {
				return nil, fmt.Errorf("template %q: bad segment %q", s, p)
			}
			t.segments = append(t.segments, segment{literal: p})
			continue
		}
		if !strings.HasSuffix(p, "}") {
			return nil, fmt.Errorf("template %q: unterminated variable %q", s, p)
		}
		name := p[1 : len(p)-1]
		multi := false
		if n, glob, ok := strings.Cut(name, "="); ok {
			if glob != "**" {
				return nil, fmt.Errorf("template %q: unsupported glob %q", s, glob)
			}
			if i != len(parts)-1 {
				return nil, fmt.Errorf("template %q: %q must be the last segment", s, p)
			}
			name, multi = n, true
		}
		if name == "" || seen[name] {
			return nil, fmt.Errorf("template %q: bad variable %q", s, p)
		}
		seen[name] = true
		t.segments = append(t.segments, segment{variable: name, multi: multi})
	}
	return t, nil
}

// MustTemplate is like NewTemplate but panics on error.
func MustTemplate(s string) *Template {
	t, err := NewTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) String() string { return t.raw }

// Vars returns the variable names in order.
func (t *Template) Vars() []string {
	var out []string
	for _, s := range t.segments {
		if s.variable != "" {
			out = append(out, s.variable)
		}
	}
	return out
}

// Match reports whether s is an instance of the template and returns the
// bound variables.
func (t *Template) Match(s string) (map[string]string, bool) {
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, "/")
	vals := make(map[string]string, len(t.segments))
	for i, seg := range t.segments {
		if i >= len(parts) {
			return nil, false
		}
		if seg.multi {
			rest := parts[i:]
			if slices.Contains(rest, "") {
				return nil, false
			}
			vals[seg.variable] = strings.Join(rest, "/")
			return vals, true
		}
		p := parts[i]
		if p == "" {
			return nil, false
		}
		if seg.variable == "" {
			if p != seg.literal {
				return nil, false
			}
			continue
		}
		vals[seg.variable] = p
	}
	if len(parts) != len(t.segments) {
		return nil, false
	}
	return vals, true
}

// ValidatedMatch is Match with an error naming the template on mismatch.
func (t *Template) ValidatedMatch(s string) (map[string]string, error) {
	vals, ok := t.Match(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not match template %s", ErrMalformedName, s, t.raw)
	}
	return vals, nil
}

// Instantiate substitutes vals into the template.
func (t *Template) Instantiate(vals map[string]string) (string, error) {
	var b strings.Builder
	for i, seg := range t.segments {
		if i > 0 {
			b.WriteByte('/')
		}
		if seg.variable == "" {
			b.WriteString(seg.literal)
			continue
		}
		v := vals[seg.variable]
		if v == "" {
			return "", fmt.Errorf("%w: %s: missing value for %q", ErrMalformedName, t.raw, seg.variable)
		}
		if seg.multi {
			if slices.Contains(strings.Split(v, "/"), "") {
				return "", fmt.Errorf("%w: %s: empty segment in %q", ErrMalformedName, t.raw, seg.variable)
			}
		} else if strings.Contains(v, "/") {
			return "", fmt.Errorf("%w: %s: %q must be a single segment, got %q", ErrMalformedName, t.raw, seg.variable, v)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func format(t *Template, vals map[string]string) string {
	s, err := t.Instantiate(vals)
	if err != nil {
		return ""
	}
	return s
}

// ParseAll parses every string with parse, failing on the first error.
func ParseAll[T any](ss []string, parse func(string) (T, error)) ([]T, error) {
	out := make([]T, 0, len(ss))
	for _, s := range ss {
		v, err := parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatAll formats every name; zero values format as "".
func FormatAll[T fmt.Stringer](names []T) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n.String()
	}
	return out
}
