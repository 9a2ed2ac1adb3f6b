// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package selection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRange is returned for malformed range expressions.
var ErrInvalidRange = errors.New("selection: invalid range")

// ParseRanges expands an expression such as "0,2-4,7" into the listed
// numbers in order of first appearance. Duplicates are dropped. An empty
// expression yields nil.
func ParseRanges(expr string) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	var out []int
	seen := make(map[int]struct{})
	add := func(n int) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parseBound(lo, part)
		if err != nil {
			return nil, err
		}
		if !isRange {
			add(first)
			continue
		}
		last, err := parseBound(hi, part)
		if err != nil {
			return nil, err
		}
		if last < first {
			return nil, fmt.Errorf("%w: %q is descending", ErrInvalidRange, part)
		}
		for n := first; n <= last; n++ {
			add(n)
		}
	}
	return out, nil
}

func parseBound(s, part string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRange, part)
	}
	return n, nil
}
