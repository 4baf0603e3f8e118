package model

import (
	"fmt"
	"maps"
	"strings"
)

// SplitFieldPath splits a dotted field path. Segments may be quoted with
// backticks to contain dots; a backslash escapes the next character
// inside quotes.
func SplitFieldPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}
	var (
		segs   []string
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case quoted && c == '\\' && i+1 < len(path):
			i++
			cur.WriteByte(path[i])
		case c == '`':
			quoted = !quoted
		case c == '.' && !quoted:
			if cur.Len() == 0 {
				return nil, fmt.Errorf("field path %q: empty segment", path)
			}
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if quoted {
		return nil, fmt.Errorf("field path %q: unterminated backtick", path)
	}
	if cur.Len() == 0 {
		return nil, fmt.Errorf("field path %q: empty segment", path)
	}
	return append(segs, cur.String()), nil
}

// GetField looks up a dotted path in fields.
func GetField(fields map[string]*Value, path string) (*Value, bool) {
	segs, err := SplitFieldPath(path)
	if err != nil {
		return nil, false
	}
	cur := fields
	for i, s := range segs {
		v, ok := cur[s]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		if v.Kind() != KindMap {
			return nil, false
		}
		cur = v.MapValue.Fields
	}
	return nil, false
}

// SetField sets a dotted path in fields, creating intermediate maps. A nil
// v deletes the path.
func SetField(fields map[string]*Value, path string, v *Value) error {
	segs, err := SplitFieldPath(path)
	if err != nil {
		return err
	}
	cur := fields
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s]
		if !ok || next.Kind() != KindMap {
			if v == nil {
				return nil
			}
			next = MapOf(map[string]*Value{})
			cur[s] = next
		}
		if next.MapValue.Fields == nil {
			next.MapValue.Fields = map[string]*Value{}
		}
		cur = next.MapValue.Fields
	}
	last := segs[len(segs)-1]
	if v == nil {
		delete(cur, last)
	} else {
		cur[last] = v
	}
	return nil
}

// ApplyMask returns a copy of fields holding only the masked paths.
func ApplyMask(fields map[string]*Value, mask *DocumentMask) map[string]*Value {
	if mask == nil {
		return fields
	}
	out := map[string]*Value{}
	for _, p := range mask.FieldPaths {
		if v, ok := GetField(fields, p); ok {
			_ = SetField(out, p, v)
		}
	}
	return out
}

// CloneFields deep-copies the map structure of fields. Leaf values are
// shared.
func CloneFields(fields map[string]*Value) map[string]*Value {
	out := maps.Clone(fields)
	if out == nil {
		out = map[string]*Value{}
	}
	for k, v := range out {
		if v.Kind() == KindMap {
			out[k] = MapOf(CloneFields(v.MapValue.Fields))
		}
	}
	return out
}
