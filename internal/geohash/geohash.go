// Package geohash encodes points to base-32 geohash strings and decodes
// hashes back to the cell they name.
//
// A shared prefix means two points fall in the same cell at that precision.
// It does not imply a fixed distance: cells shrink in width toward the poles
// and two points a few meters apart can straddle a cell boundary.
package geohash

import (
	"errors"
	"fmt"
	"strings"
)

const alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidPrecision  = errors.New("invalid precision")
)

// Precisions used across the service.
const (
	// StoragePrecision is stored on every report (~1.2km x 0.6km at the equator).
	StoragePrecision = 6
	// RatingPrecision keys location safety ratings.
	RatingPrecision = 5
	// QueryPrecision is the prefix used for proximity reads and clustering.
	QueryPrecision = 4
)

// decodeMap maps an alphabet byte to its 5-bit value; -1 marks invalid bytes.
var decodeMap [256]int8

func init() {
	for i := range decodeMap {
		decodeMap[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeMap[alphabet[i]] = int8(i)
	}
}

// Box is the rectangle covered by a geohash.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether the point lies inside the box, edges included.
func (b Box) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Center returns the midpoint of the box.
func (b Box) Center() (lat, lng float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLng + b.MaxLng) / 2
}

// ValidateCoordinate checks lat/lng ranges.
func ValidateCoordinate(lat, lng float64) error {
	// NaN fails both comparisons and is rejected here too.
	if !(lat >= -90 && lat <= 90) {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if !(lng >= -180 && lng <= 180) {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinate, lng)
	}
	return nil
}

// Encode returns the geohash of (lat, lng) with exactly precision characters.
// Bisection alternates longitude first, then latitude.
func Encode(lat, lng float64, precision int) (string, error) {
	if err := ValidateCoordinate(lat, lng); err != nil {
		return "", err
	}
	if precision < 1 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPrecision, precision)
	}

	var sb strings.Builder
	sb.Grow(precision)

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0
	even := true
	idx, bit := 0, 0

	for sb.Len() < precision {
		if even {
			mid := (minLng + maxLng) / 2
			if lng >= mid {
				idx = idx<<1 | 1
				minLng = mid
			} else {
				idx <<= 1
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				idx = idx<<1 | 1
				minLat = mid
			} else {
				idx <<= 1
				maxLat = mid
			}
		}
		even = !even

		bit++
		if bit == 5 {
			sb.WriteByte(alphabet[idx])
			idx, bit = 0, 0
		}
	}
	return sb.String(), nil
}

// MustEncode is Encode for coordinates already validated by the caller.
func MustEncode(lat, lng float64, precision int) string {
	h, err := Encode(lat, lng, precision)
	if err != nil {
		panic(err)
	}
	return h
}

// Decode returns the bounding box of hash. Decoding is case-insensitive.
func Decode(hash string) (Box, error) {
	if hash == "" {
		return Box{}, fmt.Errorf("%w: empty hash", ErrInvalidPrecision)
	}
	box := Box{MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}
	even := true
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		v := decodeMap[c]
		if v < 0 {
			return Box{}, fmt.Errorf("%w: invalid geohash character %q", ErrInvalidCoordinate, hash[i])
		}
		for shift := 4; shift >= 0; shift-- {
			set := v>>uint(shift)&1 == 1
			if even {
				mid := (box.MinLng + box.MaxLng) / 2
				if set {
					box.MinLng = mid
				} else {
					box.MaxLng = mid
				}
			} else {
				mid := (box.MinLat + box.MaxLat) / 2
				if set {
					box.MinLat = mid
				} else {
					box.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return box, nil
}

// Prefix returns the first n characters of hash, or hash itself when shorter.
func Prefix(hash string, n int) string {
	if len(hash) <= n {
		return hash
	}
	return hash[:n]
}

// Valid reports whether every character of hash belongs to the alphabet.
func Valid(hash string) bool {
	if hash == "" {
		return false
	}
	for i := 0; i < len(hash); i++ {
		if decodeMap[hash[i]] < 0 {
			return false
		}
	}
	return true
}
