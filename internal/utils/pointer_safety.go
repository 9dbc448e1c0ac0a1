// Package utils holds small generic helpers shared across packages.
package utils

// Value dereferences p, returning the zero value when p is nil. Optional
// wire fields decode into pointers; Value reads them without a nil check at
// every call site.
func Value[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Ptr returns a pointer to v, mostly for filling optional fields in
// literals.
func Ptr[T any](v T) *T {
	return &v
}
