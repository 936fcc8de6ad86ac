// Package query implements the registry's filter engine: parsing a
// request's URL query string into a paging window plus a predicate that
// combines a basic key/value template match with an optional RQL
// expression, AND-composed.
package query

import (
	"net/url"
	"strconv"
	"strings"
)

// Mode selects how a basic-match scalar comparison is performed. NMOS
// resource queries always use ModeExact; the substring/case-insensitive
// modes exist for the same matcher's reuse elsewhere (log/event search).
type Mode int

const (
	ModeExact Mode = iota
	ModeSubstr
	ModeICase
)

// Filter is a parsed request filter: a basic-match template plus an
// optional RQL expression, combined with logical AND, and a paging
// window.
type Filter struct {
	Basic  map[string]interface{}
	RQL    Expr
	Offset int
	Limit  int // 0 means unlimited
}

// Matches reports whether candidate satisfies both the basic-match
// template and the RQL expression (if any).
func (f *Filter) Matches(candidate map[string]interface{}) bool {
	if len(f.Basic) > 0 && !BasicMatch(f.Basic, candidate, ModeExact) {
		return false
	}
	if f.RQL != nil && !f.RQL.Eval(candidate) {
		return false
	}
	return true
}

// Parse builds a Filter from a request's raw query string (as returned
// by (*url.URL).RawQuery).
func Parse(rawQuery string) (*Filter, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	f := &Filter{Basic: map[string]interface{}{}}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch {
		case key == "paging.offset":
			f.Offset, _ = strconv.Atoi(v)
		case key == "paging.limit":
			f.Limit, _ = strconv.Atoi(v)
		case key == "query.rql":
			expr, err := ParseRQL(v)
			if err != nil {
				return nil, err
			}
			f.RQL = expr
		default:
			setDotted(f.Basic, strings.Split(key, "."), parseScalar(v))
		}
	}
	return f, nil
}

// setDotted inserts value into root following the dotted path segments,
// creating intermediate objects as needed ("foo.bar=1" -> {foo:{bar:1}}).
func setDotted(root map[string]interface{}, path []string, value interface{}) {
	cur := root
	for i, seg := range path {
		if i == len(path)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[seg] = next
		}
		cur = next
	}
}

func parseScalar(v string) interface{} {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	if v == "true" || v == "false" {
		return v == "true"
	}
	return v
}

// BasicMatch recursively matches query against candidate. Every field
// present in query must be present in candidate with a matching value.
// Scalars compare per mode; arrays match when every query element
// matches some candidate element; objects recurse field by field.
func BasicMatch(query, candidate interface{}, mode Mode) bool {
	switch q := query.(type) {
	case map[string]interface{}:
		c, ok := candidate.(map[string]interface{})
		if !ok {
			return false
		}
		for k, qv := range q {
			cv, present := c[k]
			if !present || !BasicMatch(qv, cv, mode) {
				return false
			}
		}
		return true
	case []interface{}:
		c, ok := candidate.([]interface{})
		if !ok {
			return false
		}
		for _, qElem := range q {
			found := false
			for _, cElem := range c {
				if BasicMatch(qElem, cElem, mode) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return matchScalar(query, candidate, mode)
	}
}

func matchScalar(query, candidate interface{}, mode Mode) bool {
	qs, qIsString := query.(string)
	cs, cIsString := candidate.(string)
	if qIsString && cIsString {
		switch mode {
		case ModeSubstr:
			return strings.Contains(cs, qs)
		case ModeICase:
			return strings.EqualFold(cs, qs)
		default:
			return cs == qs
		}
	}
	return query == candidate
}

// Window returns the offset..offset+limit slice of items (per the
// Filter's paging params) along with the total matching count.
func Window[T any](items []T, f *Filter) (page []T, total int) {
	total = len(items)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []T{}, total
	}
	end := total
	if f.Limit > 0 && offset+f.Limit < end {
		end = offset + f.Limit
	}
	return items[offset:end], total
}
