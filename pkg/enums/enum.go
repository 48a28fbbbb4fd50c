package enums

import (
	"fmt"
	"slices"
)

// parse accepts value only when it exactly matches one of valid.
func parse[T ~string](kind, value string, valid []T) (T, error) {
	if v := T(value); slices.Contains(valid, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
