package pipeline

// Retry invokes fn up to attempts times, returning the first result that
// acceptable approves, or the last result otherwise. fn receives the
// 1-based attempt number.
func Retry[T any](attempts int, fn func(attempt int) T, acceptable func(T) bool) T {
	var last T
	for i := 1; i <= attempts; i++ {
		last = fn(i)
		if acceptable(last) {
			return last
		}
	}
	return last
}
