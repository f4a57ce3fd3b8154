//go:build tinygo || !cgo

package gleval

// InitHiddenContext is not supported without CGo.
func InitHiddenContext() (terminate func(), err error) {
	return nil, errNoCGO
}

// Driver returns an empty [DriverInfo] without CGo.
func Driver() DriverInfo { return DriverInfo{} }

// Check is not supported without CGo.
func Check(vertex, fragment []byte) error {
	return errNoCGO
}
