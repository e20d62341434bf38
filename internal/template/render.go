package template

import (
	"strconv"
	"strings"
)

// Render walks the template tree and returns a new tree in which every string
// leaf has its placeholders substituted from ctx. Non-string leaves pass
// through unchanged. Missing paths render as the empty string, sections over
// missing or non-iterable values render zero times and malformed constructs
// are left verbatim, so rendering cannot fail.
func Render(tmpl, ctx Value) Value {
	return renderValue(tmpl, []Value{ctx})
}

// RenderString substitutes placeholders in a single string against ctx.
func RenderString(s string, ctx Value) string {
	return renderString(s, []Value{ctx})
}

func renderValue(v Value, scopes []Value) Value {
	switch v.kind {
	case String:
		return StringValue(renderString(v.str, scopes))
	case Object:
		obj := make(map[string]Value, len(v.obj))
		for k, child := range v.obj {
			obj[k] = renderValue(child, scopes)
		}
		return Value{kind: Object, obj: obj}
	case Array:
		arr := make([]Value, len(v.arr))
		for i, child := range v.arr {
			arr[i] = renderValue(child, scopes)
		}
		return Value{kind: Array, arr: arr}
	default:
		return v
	}
}

func renderString(s string, scopes []Value) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		open += i
		b.WriteString(s[i:open])

		rel := strings.Index(s[open+2:], "}}")
		if rel < 0 {
			// Unterminated tag, the rest of the string is literal.
			b.WriteString(s[open:])
			break
		}
		end := open + 2 + rel
		tag := s[open+2 : end]
		next := end + 2

		switch {
		case strings.HasPrefix(tag, "#"):
			name := strings.TrimSpace(tag[1:])
			if !validPath(name) {
				b.WriteString(s[open:next])
				i = next
				continue
			}
			inner, rest, ok := sectionBody(s[next:], name)
			if !ok {
				// Section never closed, keep the opener literal.
				b.WriteString(s[open:next])
				i = next
				continue
			}
			if val, found := lookup(scopes, name); found {
				switch val.kind {
				case Array:
					for _, el := range val.arr {
						b.WriteString(renderString(inner, append(scopes, el)))
					}
				case Object:
					b.WriteString(renderString(inner, append(scopes, val)))
				}
			}
			i = next + rest
		case strings.HasPrefix(tag, "/"):
			// Close tag without an opener stays literal.
			b.WriteString(s[open:next])
			i = next
		default:
			path := strings.TrimSpace(tag)
			if !validPath(path) {
				b.WriteString(s[open:next])
				i = next
				continue
			}
			if val, found := lookup(scopes, path); found {
				b.WriteString(val.Text())
			}
			i = next
		}
	}
	return b.String()
}

// sectionBody finds the matching close tag for an already-consumed section
// opener, honoring nested sections of the same name. It returns the enclosed
// fragment and the offset just past the close tag.
func sectionBody(s, name string) (inner string, after int, ok bool) {
	depth := 1
	i := 0
	for {
		open := strings.Index(s[i:], "{{")
		if open < 0 {
			return "", 0, false
		}
		open += i
		rel := strings.Index(s[open+2:], "}}")
		if rel < 0 {
			return "", 0, false
		}
		end := open + 2 + rel
		tag := s[open+2 : end]
		switch {
		case strings.HasPrefix(tag, "#") && strings.TrimSpace(tag[1:]) == name:
			depth++
		case strings.HasPrefix(tag, "/") && strings.TrimSpace(tag[1:]) == name:
			depth--
			if depth == 0 {
				return s[:open], end + 2, true
			}
		}
		i = end + 2
	}
}

// lookup resolves a dotted path against the scope stack, innermost first.
// The path "." names the innermost scope value itself.
func lookup(scopes []Value, path string) (Value, bool) {
	if path == "." {
		return scopes[len(scopes)-1], true
	}
	segs := strings.Split(path, ".")
	for i := len(scopes) - 1; i >= 0; i-- {
		if v, ok := walk(scopes[i], segs); ok {
			return v, true
		}
	}
	return Value{}, false
}

func walk(v Value, segs []string) (Value, bool) {
	cur := v
	for _, seg := range segs {
		switch cur.kind {
		case Object:
			next, ok := cur.obj[seg]
			if !ok {
				return Value{}, false
			}
			cur = next
		case Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

func validPath(p string) bool {
	if p == "." {
		return true
	}
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(p, ".") {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '_' || r == '-':
			default:
				return false
			}
		}
	}
	return true
}
