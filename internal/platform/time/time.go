// Package time contains time related helpers
package time

import "time"

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Max returns the later of a and b
func Max(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// Deref returns the zero time if pt is nil, else *pt
func Deref(pt *time.Time) time.Time {
	if pt == nil {
		return time.Time{}
	}
	return *pt
}
