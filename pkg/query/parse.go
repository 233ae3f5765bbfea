package query

import (
	"net/url"
	"sort"
	"strings"
)

// FromValues reads filters of the form field[op]=value from a query string,
// for example status[in]=paid,processing or total[gte]=50. A bare field=value
// is treated as eq. Keys that are not in fields are ignored so pagination
// parameters can share the query string.
func FromValues(values url.Values, fields Fields) Spec {
	spec := Spec{}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field, op := splitKey(key)
		if _, ok := fields[field]; !ok {
			continue
		}
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		switch op {
		case OpIn:
			parts := strings.Split(raw, ",")
			list := make([]string, 0, len(parts))
			for _, part := range parts {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					list = append(list, trimmed)
				}
			}
			spec.Filters = append(spec.Filters, Filter{Field: field, Operator: op, Value: list})
		case OpIsNull:
			spec.Filters = append(spec.Filters, Filter{Field: field, Operator: op, Value: raw == "true"})
		default:
			spec.Filters = append(spec.Filters, Filter{Field: field, Operator: op, Value: raw})
		}
	}

	if rawSort := strings.TrimSpace(values.Get("sort")); rawSort != "" {
		for _, part := range strings.Split(rawSort, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			dir := Asc
			if strings.HasPrefix(part, "-") {
				dir = Desc
				part = part[1:]
			}
			spec.Sort = append(spec.Sort, Sort{Field: part, Direction: dir})
		}
	}
	return spec
}

func splitKey(key string) (string, Operator) {
	open := strings.Index(key, "[")
	if open < 0 || !strings.HasSuffix(key, "]") {
		return key, OpEq
	}
	return key[:open], Operator(key[open+1 : len(key)-1])
}
