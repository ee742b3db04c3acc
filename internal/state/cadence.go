package state

// ShouldBroadcast reports whether the broadcaster publishes at counter
// value n: at 0 and at every exact power of base (1, base, base², ...).
// Negative values never broadcast.
func ShouldBroadcast(n int64, base int64) bool {
	if n < 0 {
		return false
	}
	if n == 0 || n == 1 {
		return true
	}
	if base < 2 {
		return false
	}
	p := int64(1)
	for p < n {
		if p > n/base {
			return false
		}
		p *= base
	}
	return p == n
}
