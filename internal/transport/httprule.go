// Package transport binds RPCs to Firestore's REST surface: it expands
// google.api.http path templates, encodes requests, applies the retry
// table and maps HTTP failures onto gRPC status codes.
package transport

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// HTTPRule is a compiled google.api.http path template such as
// "/v1/{name=projects/*/databases/*}:exportDocuments". Inside a variable,
// "*" matches one segment and "**" any number of further segments.
type HTTPRule struct {
	raw   string
	parts []rulePart
	verb  string
	re    *regexp.Regexp
}

type rulePart struct {
	literal string
	field   string
	glob    *regexp.Regexp
}

// ParseHTTPRule compiles a path template.
func ParseHTTPRule(tmpl string) (*HTTPRule, error) {
	if !strings.HasPrefix(tmpl, "/") {
		return nil, fmt.Errorf("http rule %q: must start with /", tmpl)
	}
	if err := checkBraces(tmpl); err != nil {
		return nil, fmt.Errorf("http rule %q: %w", tmpl, err)
	}
	r := &HTTPRule{raw: tmpl}

	path := tmpl
	depth := 0
	for i := len(tmpl) - 1; i >= 0; i-- {
		switch c := tmpl[i]; {
		case c == '}':
			depth++
		case c == '{':
			depth--
		case c == '/' && depth == 0:
			i = -1
		case c == ':' && depth == 0:
			path, r.verb = tmpl[:i], tmpl[i+1:]
			i = -1
		}
	}

	var re strings.Builder
	re.WriteString("^")
	for path != "" {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			r.parts = append(r.parts, rulePart{literal: path})
			re.WriteString(regexp.QuoteMeta(path))
			break
		}
		if open > 0 {
			r.parts = append(r.parts, rulePart{literal: path[:open]})
			re.WriteString(regexp.QuoteMeta(path[:open]))
		}
		end := strings.IndexByte(path, '}')
		if end < open {
			return nil, fmt.Errorf("http rule %q: unbalanced braces", tmpl)
		}
		field, pattern, _ := strings.Cut(path[open+1:end], "=")
		if field == "" {
			return nil, fmt.Errorf("http rule %q: empty variable", tmpl)
		}
		if pattern == "" {
			pattern = "*"
		}
		globRE, err := globRegexp(pattern)
		if err != nil {
			return nil, fmt.Errorf("http rule %q: %w", tmpl, err)
		}
		r.parts = append(r.parts, rulePart{field: field, glob: regexp.MustCompile("^" + globRE + "$")})
		re.WriteString("(" + globRE + ")")
		path = path[end+1:]
	}
	if r.verb != "" {
		re.WriteString(regexp.QuoteMeta(":" + r.verb))
	}
	re.WriteString("$")

	var err error
	if r.re, err = regexp.Compile(re.String()); err != nil {
		return nil, fmt.Errorf("http rule %q: %w", tmpl, err)
	}
	return r, nil
}

// checkBraces requires every variable to be closed and none to nest.
func checkBraces(tmpl string) error {
	open := false
	for _, c := range tmpl {
		switch c {
		case '{':
			if open {
				return fmt.Errorf("nested variable")
			}
			open = true
		case '}':
			if !open {
				return fmt.Errorf("unbalanced braces")
			}
			open = false
		}
	}
	if open {
		return fmt.Errorf("unbalanced braces")
	}
	return nil
}

// MustHTTPRule is like ParseHTTPRule but panics on error.
func MustHTTPRule(tmpl string) *HTTPRule {
	r, err := ParseHTTPRule(tmpl)
	if err != nil {
		panic(err)
	}
	return r
}

func globRegexp(pattern string) (string, error) {
	var b strings.Builder
	for i, seg := range strings.Split(pattern, "/") {
		switch seg {
		case "":
			return "", fmt.Errorf("empty segment in %q", pattern)
		case "*":
			if i > 0 {
				b.WriteString("/")
			}
			b.WriteString(`[^/]+`)
		case "**":
			if i == 0 {
				b.WriteString(`[^/]+(?:/[^/]+)*`)
			} else {
				b.WriteString(`(?:/[^/]+)*`)
			}
		default:
			if strings.ContainsAny(seg, "*{}") {
				return "", fmt.Errorf("bad segment %q in %q", seg, pattern)
			}
			if i > 0 {
				b.WriteString("/")
			}
			b.WriteString(regexp.QuoteMeta(seg))
		}
	}
	return b.String(), nil
}

func (r *HTTPRule) String() string { return r.raw }

// Verb is the custom method suffix ("exportDocuments"), or "".
func (r *HTTPRule) Verb() string { return r.verb }

// Fields lists the request fields bound by the path, in order.
func (r *HTTPRule) Fields() []string {
	var out []string
	for _, p := range r.parts {
		if p.field != "" {
			out = append(out, p.field)
		}
	}
	return out
}

// Expand fills the template from params, keyed by field path. Each value
// must match its variable's pattern; segments are percent-escaped.
func (r *HTTPRule) Expand(params map[string]string) (string, error) {
	var b strings.Builder
	for _, p := range r.parts {
		if p.field == "" {
			b.WriteString(p.literal)
			continue
		}
		v, ok := params[p.field]
		if !ok || v == "" {
			return "", fmt.Errorf("%s: missing %s", r.raw, p.field)
		}
		if !p.glob.MatchString(v) {
			return "", fmt.Errorf("%s: %s %q does not match %s", r.raw, p.field, v, p.glob.String())
		}
		segs := strings.Split(v, "/")
		for i, s := range segs {
			segs[i] = url.PathEscape(s)
		}
		b.WriteString(strings.Join(segs, "/"))
	}
	if r.verb != "" {
		b.WriteString(":" + r.verb)
	}
	return b.String(), nil
}

// Match parses an escaped request path against the template and returns
// the unescaped variable values.
func (r *HTTPRule) Match(escapedPath string) (map[string]string, bool) {
	m := r.re.FindStringSubmatch(escapedPath)
	if m == nil {
		return nil, false
	}
	out := make(map[string]string, len(m)-1)
	i := 1
	for _, p := range r.parts {
		if p.field == "" {
			continue
		}
		segs := strings.Split(m[i], "/")
		for j, s := range segs {
			u, err := url.PathUnescape(s)
			if err != nil {
				return nil, false
			}
			segs[j] = u
		}
		out[p.field] = strings.Join(segs, "/")
		i++
	}
	return out, true
}
