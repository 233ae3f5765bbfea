package enums

import (
	"fmt"
	"slices"
)

// member reports whether v is one of set.
func member[T ~string](v T, set []T) bool {
	return slices.Contains(set, v)
}

// parse returns the member of set spelled exactly as raw.
func parse[T ~string](kind, raw string, set []T) (T, error) {
	if v := T(raw); member(v, set) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
