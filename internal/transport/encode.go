package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"
)

// encodedCall is a request split into its HTTP parts.
type encodedCall struct {
	method string
	path   string
	query  url.Values
	body   []byte
	params map[string]string
}

func toMap(req any) (map[string]any, error) {
	m := map[string]any{}
	if req == nil {
		return m, nil
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("request is not a JSON object: %w", err)
	}
	return m, nil
}

// encode binds req to the first rule of route whose variables are all
// present and match.
func encode(route *Route, req any) (*encodedCall, error) {
	m, err := toMap(req)
	if err != nil {
		return nil, err
	}

	var (
		path    string
		params  map[string]string
		lastErr error
	)
	for _, rule := range route.rules {
		vals := map[string]string{}
		for _, f := range rule.Fields() {
			if s, ok := getPath(m, f).(string); ok {
				vals[f] = s
			}
		}
		p, err := rule.Expand(vals)
		if err != nil {
			lastErr = err
			continue
		}
		path, params = p, vals
		break
	}
	if path == "" {
		return nil, fmt.Errorf("no binding of %s fits the request: %w", route.RPC, lastErr)
	}

	call := &encodedCall{method: route.HTTPMethod, path: path, params: params, query: url.Values{}}

	switch route.Body {
	case "*":
		for f := range params {
			deletePath(m, f)
		}
		if call.body, err = json.Marshal(m); err != nil {
			return nil, err
		}
		return call, nil
	case "":
	default:
		if v, ok := m[route.Body]; ok {
			if call.body, err = json.Marshal(v); err != nil {
				return nil, err
			}
		} else {
			call.body = []byte("{}")
		}
		delete(m, route.Body)
	}
	for f := range params {
		deletePath(m, f)
	}
	flatten(call.query, "", m)
	return call, nil
}

// routingHeader renders the x-goog-request-params value.
func (c *encodedCall) routingHeader() string {
	v := url.Values{}
	for k, s := range c.params {
		v.Set(k, s)
	}
	return v.Encode()
}

func getPath(m map[string]any, path string) any {
	var cur any = m
	for _, p := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[p]
	}
	return cur
}

func deletePath(m map[string]any, path string) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			return
		}
		m = next
	}
	delete(m, parts[len(parts)-1])
}

func setPath(m map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

// flatten writes the leaves of v as query parameters: nested messages
// become dotted names and repeated fields repeat the parameter.
func flatten(q url.Values, prefix string, v any) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			name := k
			if prefix != "" {
				name = prefix + "." + k
			}
			flatten(q, name, x[k])
		}
	case []any:
		for _, e := range x {
			flatten(q, prefix, e)
		}
	case nil:
	case string:
		q.Add(prefix, x)
	case bool:
		if x {
			q.Add(prefix, "true")
		} else {
			q.Add(prefix, "false")
		}
	case json.Number:
		q.Add(prefix, x.String())
	default:
		q.Add(prefix, fmt.Sprint(x))
	}
}

// systemParams are accepted on every request and never bound to fields.
var systemParams = map[string]bool{
	"alt": true, "key": true, "prettyPrint": true, "fields": true,
	"access_token": true, "quotaUser": true, "callback": true,
}

// Decode is the server half of the binding: it rebuilds the request
// message v from the path variables, query string and body.
func Decode(route *Route, params map[string]string, query url.Values, body []byte, v any) error {
	m := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 && route.Body != "" {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var b any
		if err := dec.Decode(&b); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
		if route.Body == "*" {
			obj, ok := b.(map[string]any)
			if !ok {
				return fmt.Errorf("request body must be a JSON object")
			}
			m = obj
		} else {
			m[route.Body] = b
		}
	}

	t := reflect.TypeOf(v)
	for key, vals := range query {
		if systemParams[key] || strings.HasPrefix(key, "$") {
			continue
		}
		ft, stringTag, ok := fieldType(t, key)
		if !ok {
			return fmt.Errorf("unknown query parameter %q", key)
		}
		val, err := queryValue(ft, stringTag, vals)
		if err != nil {
			return fmt.Errorf("query parameter %q: %w", key, err)
		}
		setPath(m, key, val)
	}
	for k, s := range params {
		setPath(m, k, s)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func deref(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// fieldType resolves a dotted JSON field path against a Go type.
func fieldType(t reflect.Type, path string) (reflect.Type, bool, bool) {
	var stringTag bool
	for _, name := range strings.Split(path, ".") {
		t = deref(t)
		if t == nil || t.Kind() != reflect.Struct {
			return nil, false, false
		}
		found := false
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag := f.Tag.Get("json")
			tagName, opts, _ := strings.Cut(tag, ",")
			if tagName == "" {
				tagName = f.Name
			}
			if tagName == name {
				t, found = f.Type, true
				stringTag = strings.Contains(opts, "string")
				break
			}
		}
		if !found {
			return nil, false, false
		}
	}
	return t, stringTag, true
}

var (
	unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	timeType        = reflect.TypeOf(time.Time{})
)

func queryValue(t reflect.Type, stringTag bool, vals []string) (any, error) {
	t = deref(t)
	if t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		out := make([]any, 0, len(vals))
		for _, s := range vals {
			v, err := scalar(t.Elem(), false, s)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return scalar(t, stringTag, vals[len(vals)-1])
}

func scalar(t reflect.Type, stringTag bool, s string) (any, error) {
	t = deref(t)
	if stringTag || t == timeType || reflect.PointerTo(t).Implements(unmarshalerType) {
		return s, nil
	}
	switch t.Kind() {
	case reflect.String:
		return s, nil
	case reflect.Bool:
		switch s {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		n := json.Number(s)
		if _, err := n.Float64(); err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return n, nil
	case reflect.Slice:
		return s, nil
	}
	return nil, fmt.Errorf("cannot bind a %s from the query string", t)
}
