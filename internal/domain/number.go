package domain

// MaxExactInt bounds the integers stored as numbers. Every integer in
// [-MaxExactInt, MaxExactInt] has an exact float64 form.
const MaxExactInt = 1 << 53

// ExactInt reports whether i survives conversion to float64.
func ExactInt(i int64) bool { return i >= -MaxExactInt && i <= MaxExactInt }

// ExactUint reports whether u survives conversion to float64.
func ExactUint(u uint64) bool { return u <= MaxExactInt }
