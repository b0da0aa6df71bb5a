// Package meta defines the read-only metadata contract a writer session
// binds to before accepting pixel data.
package meta

import (
	"fmt"

	"github.com/bioimago/go-bioimage-writer/pixel"
)

// Retrieve is the read-only metadata provider describing the dataset being
// written: how many series it holds and the geometry of each. Implementations
// return zero values for out-of-range series; the writer bounds-checks series
// indices before querying.
type Retrieve interface {
	// SeriesCount returns the number of image series in the dataset
	SeriesCount() int

	// PlaneCount returns the number of planes in the given series
	PlaneCount(series int) int

	// SizeX returns the plane width in samples for the given series
	SizeX(series int) int

	// SizeY returns the plane height in samples for the given series
	SizeY(series int) int

	// PixelType returns the sample encoding of the given series
	PixelType(series int) pixel.Type

	// RGBChannelCount returns the samples per pixel of the given series
	RGBChannelCount(series int) int
}

// Series describes the geometry of one image series
type Series struct {
	SizeX    int
	SizeY    int
	Planes   int
	Type     pixel.Type
	Channels int
}

// Store is an in-memory Retrieve implementation assembled by callers
type Store struct {
	series []Series
}

var _ Retrieve = (*Store)(nil)

// NewStore creates a Store holding the given series
func NewStore(series ...Series) *Store {
	return &Store{series: series}
}

// Add appends a series and returns the store for chaining
func (s *Store) Add(sr Series) *Store {
	s.series = append(s.series, sr)
	return s
}

// SeriesCount returns the number of series in the store
func (s *Store) SeriesCount() int {
	return len(s.series)
}

// PlaneCount returns the plane count of the given series, or 0 when out of range
func (s *Store) PlaneCount(series int) int {
	if series < 0 || series >= len(s.series) {
		return 0
	}
	return s.series[series].Planes
}

// SizeX returns the plane width of the given series, or 0 when out of range
func (s *Store) SizeX(series int) int {
	if series < 0 || series >= len(s.series) {
		return 0
	}
	return s.series[series].SizeX
}

// SizeY returns the plane height of the given series, or 0 when out of range
func (s *Store) SizeY(series int) int {
	if series < 0 || series >= len(s.series) {
		return 0
	}
	return s.series[series].SizeY
}

// PixelType returns the sample encoding of the given series, or 0 when out of range
func (s *Store) PixelType(series int) pixel.Type {
	if series < 0 || series >= len(s.series) {
		return 0
	}
	return s.series[series].Type
}

// RGBChannelCount returns the samples per pixel of the given series, or 0 when out of range
func (s *Store) RGBChannelCount(series int) int {
	if series < 0 || series >= len(s.series) {
		return 0
	}
	return s.series[series].Channels
}

// Validate checks a provider for structural sanity: at least one series,
// positive extents and plane counts, at least one channel, and a defined
// pixel type for every series. Writers apply it at bind time.
func Validate(r Retrieve) error {
	n := r.SeriesCount()
	if n < 1 {
		return fmt.Errorf("meta: metadata defines no series")
	}
	for s := 0; s < n; s++ {
		if x := r.SizeX(s); x < 1 {
			return fmt.Errorf("meta: series %d: size X %d, must be positive", s, x)
		}
		if y := r.SizeY(s); y < 1 {
			return fmt.Errorf("meta: series %d: size Y %d, must be positive", s, y)
		}
		if p := r.PlaneCount(s); p < 1 {
			return fmt.Errorf("meta: series %d: plane count %d, must be positive", s, p)
		}
		if c := r.RGBChannelCount(s); c < 1 {
			return fmt.Errorf("meta: series %d: channel count %d, must be positive", s, c)
		}
		if t := r.PixelType(s); !t.Valid() {
			return fmt.Errorf("meta: series %d: undefined pixel type", s)
		}
	}
	return nil
}
