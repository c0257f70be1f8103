package frame

import (
	"strings"

	"github.com/pkg/errors"
)

// LeftJoin keeps every left row, attaching the columns of each right row
// whose key columns equal the left row's. A left row matching several right
// rows is repeated once per match; an unmatched left row gets nulls. Null key
// cells never match. Right columns whose name already exists on the left are
// renamed with suffix.
func LeftJoin(left, right *Frame, on []string, suffix string) (*Frame, error) {
	if err := left.Require("left join", on...); err != nil {
		return nil, err
	}
	if err := right.Require("left join", on...); err != nil {
		return nil, err
	}

	index := make(map[string][]int, right.Len())
	for i := 0; i < right.Len(); i++ {
		k, ok := rowKey(right, on, i)
		if !ok {
			continue
		}
		index[k] = append(index[k], i)
	}

	leftIdx := make([]int, 0, left.Len())
	rightIdx := make([]int, 0, left.Len())
	for i := 0; i < left.Len(); i++ {
		k, ok := rowKey(left, on, i)
		matches := index[k]
		if !ok || len(matches) == 0 {
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, -1)
			continue
		}
		for _, j := range matches {
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, j)
		}
	}

	isKey := make(map[string]bool, len(on))
	for _, k := range on {
		isKey[k] = true
	}

	cols := make([]*Column, 0, len(left.order)+len(right.order))
	for _, n := range left.order {
		cols = append(cols, left.cols[n].take(leftIdx))
	}
	for _, n := range right.order {
		if isKey[n] {
			continue
		}
		c := right.cols[n].take(rightIdx)
		if left.Has(n) {
			if suffix == "" {
				return nil, errors.Errorf("column %q exists on both sides and no suffix was given", n)
			}
			c = c.Renamed(n + suffix)
		}
		cols = append(cols, c)
	}

	return New(cols...)
}

func rowKey(f *Frame, on []string, i int) (string, bool) {
	parts := make([]string, len(on))
	for j, n := range on {
		s, ok := f.cols[n].Text(i)
		if !ok {
			return "", false
		}
		parts[j] = s
	}
	return strings.Join(parts, "\x1f"), true
}
