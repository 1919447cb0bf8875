//go:build !edsdk

package edsdk

// Open reports ErrUnavailable; this build carries no vendor library.  Use
// NewMock for development without a camera.
func Open() (SDK, error) {
	return nil, ErrUnavailable
}
