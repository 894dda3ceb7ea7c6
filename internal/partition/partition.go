// Package partition splits the link list across parallel CI nodes.
//
// Each node receives a contiguous range. Earlier nodes get exactly
// per = max(1, n/total) items and the last node absorbs the remainder, so the
// ranges of nodes 0..total-1 cover the list exactly once.
package partition

// Bounds returns the half-open range [start, end) assigned to node index out of total.
// Results are clamped into [0, n] with start <= end, so an out-of-range index
// yields an empty range instead of panicking. A total below one is treated as one.
func Bounds(n, index, total int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if total < 1 {
		total = 1
	}
	per := max(1, n/total)
	start := index * per
	end := start + per
	if index == total-1 {
		end = n
	}
	start = clamp(start, 0, n)
	end = clamp(end, start, n)
	return start, end
}

// Slice returns the node's share of list. The result shares backing storage
// with list but has its capacity capped, so appends never leak into a
// neighbouring node's range.
func Slice[T any](list []T, index, total int) []T {
	start, end := Bounds(len(list), index, total)
	return list[start:end:end]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
