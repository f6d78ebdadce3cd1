package trace

// FindLowIndexInSortedArray returns the index of the first element whose key
// equals val, or the insertion index of val when there is none. An empty
// array yields 1.
func FindLowIndexInSortedArray[T any](ary []T, key func(T) Time, val Time) int {
	if len(ary) == 0 {
		return 1
	}

	low, high := 0, len(ary)-1
	hit := -1
	for low <= high {
		i := (low + high) / 2
		switch k := key(ary[i]); {
		case k < val:
			low = i + 1
		case k > val:
			high = i - 1
		default:
			hit = i
			high = i - 1
		}
	}
	if hit != -1 {
		return hit
	}
	return low
}

// FindLowIndexInSortedIntervals returns the index of the interval containing
// val. The intervals [lo, lo+width) must be sorted and must not overlap. It
// returns -1 when val is before the first interval and len(ary) when no
// interval contains it otherwise.
func FindLowIndexInSortedIntervals[T any](ary []T, lo func(T) Time, width func(T, int) Time, val Time) int {
	contains := func(i int) bool {
		start := lo(ary[i])
		return val >= start && val-start < width(ary[i], i)
	}

	first := FindLowIndexInSortedArray(ary, lo, val)
	switch {
	case len(ary) == 0:
		return 0
	case first == 0:
		if contains(0) {
			return 0
		}
		return -1
	case first < len(ary):
		if contains(first) {
			return first
		}
		if contains(first - 1) {
			return first - 1
		}
		return len(ary)
	case first == len(ary):
		if contains(first - 1) {
			return first - 1
		}
		return len(ary)
	}
	return len(ary)
}
