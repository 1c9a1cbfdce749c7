package dom

import "strings"

type declaration struct {
	prop  string
	value string
}

// declarations is an ordered inline style ("a: b; c: d").
type declarations []declaration

func parseStyle(s string) declarations {
	var out declarations
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" {
			continue
		}
		out = out.set(prop, value)
	}
	return out
}

func (d declarations) get(prop string) string {
	prop = strings.ToLower(prop)
	for _, decl := range d {
		if decl.prop == prop {
			return decl.value
		}
	}
	return ""
}

func (d declarations) set(prop, value string) declarations {
	prop = strings.ToLower(prop)
	for i := range d {
		if d[i].prop == prop {
			d[i].value = value
			return d
		}
	}
	return append(d, declaration{prop: prop, value: value})
}

func (d declarations) remove(prop string) declarations {
	prop = strings.ToLower(prop)
	out := d[:0]
	for _, decl := range d {
		if decl.prop != prop {
			out = append(out, decl)
		}
	}
	return out
}

func (d declarations) String() string {
	parts := make([]string, 0, len(d))
	for _, decl := range d {
		parts = append(parts, decl.prop+": "+decl.value)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}
