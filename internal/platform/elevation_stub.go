//go:build !windows

package platform

// IsElevated always reports true off Windows: elevation only gates the
// live Windows collectors, and those never run here.
func IsElevated() bool {
	return true
}
