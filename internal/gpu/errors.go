package gpu

import "errors"

var (
	// ErrSurfaceLost means the presentable surface became invalid and must
	// be reconfigured before the next frame.
	ErrSurfaceLost = errors.New("surface lost")

	// ErrOutOfMemory means a buffer or surface allocation exceeded the
	// device budget. Fatal to the frame loop.
	ErrOutOfMemory = errors.New("out of device memory")

	// ErrDeviceLost means the device is gone for good. Fatal.
	ErrDeviceLost = errors.New("device lost")
)
