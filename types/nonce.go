package types

import "fmt"

// Nonce is the position of a message in a lane.
type Nonce = uint64

// NonceRange is an inclusive range of nonces. A range with First > Last is
// empty.
type NonceRange struct {
	First Nonce `json:"first"`
	Last  Nonce `json:"last"`
}

// NewNonceRange returns the range [first, last].
func NewNonceRange(first, last Nonce) NonceRange {
	return NonceRange{First: first, Last: last}
}

// Begin returns the first nonce of the range.
func (r NonceRange) Begin() Nonce { return r.First }

// End returns the last nonce of the range.
func (r NonceRange) End() Nonce { return r.Last }

// IsEmpty reports whether the range contains no nonces.
func (r NonceRange) IsEmpty() bool { return r.First > r.Last }

// Len returns the number of nonces in the range.
func (r NonceRange) Len() uint64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Last - r.First + 1
}

// Contains reports whether n is inside the range.
func (r NonceRange) Contains(n Nonce) bool {
	return !r.IsEmpty() && r.First <= n && n <= r.Last
}

// Overlaps reports whether both ranges share at least one nonce.
func (r NonceRange) Overlaps(o NonceRange) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.First <= o.Last && o.First <= r.Last
}

// GreaterThan truncates the range to the nonces that are greater than n.
// The second return value is false if no such nonces exist.
func (r NonceRange) GreaterThan(n Nonce) (NonceRange, bool) {
	if r.IsEmpty() || r.Last <= n {
		return NonceRange{}, false
	}
	if r.First <= n {
		r.First = n + 1
	}
	return r, true
}

func (r NonceRange) String() string {
	if r.IsEmpty() {
		return "[]"
	}
	return fmt.Sprintf("[%d..=%d]", r.First, r.Last)
}
