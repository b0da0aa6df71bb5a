package format

import "fmt"

// Region is a rectangular sub-area of a plane, in samples
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// FullPlane returns the region covering an entire plane of the given extent
func FullPlane(sizeX, sizeY int) Region {
	return Region{X: 0, Y: 0, Width: sizeX, Height: sizeY}
}

// Full reports whether the region covers an entire plane of the given extent
func (r Region) Full(sizeX, sizeY int) bool {
	return r.X == 0 && r.Y == 0 && r.Width == sizeX && r.Height == sizeY
}

// String renders the region as "WxH@(X,Y)"
func (r Region) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", r.Width, r.Height, r.X, r.Y)
}

// check validates the region against a plane extent. Offsets must be
// non-negative, extents positive, and the rectangle must lie inside the
// plane.
func (r Region) check(sizeX, sizeY int) error {
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("negative offset in region %s", r)
	}
	if r.Width < 1 || r.Height < 1 {
		return fmt.Errorf("empty region %s", r)
	}
	if r.X+r.Width > sizeX {
		return fmt.Errorf("region %s exceeds plane width %d", r, sizeX)
	}
	if r.Y+r.Height > sizeY {
		return fmt.Errorf("region %s exceeds plane height %d", r, sizeY)
	}
	return nil
}
