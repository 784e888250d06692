package geohash

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownValues(t *testing.T) {
	tests := []struct {
		name      string
		lat, lng  float64
		precision int
		want      string
	}{
		{"jutland", 57.64911, 10.40744, 11, "u4pruydqqvj"},
		{"origin", 0, 0, 5, "s0000"},
		{"bangalore", 12.9716, 77.5946, 6, "tdr1v9"},
		{"single char", 57.64911, 10.40744, 1, "u"},
		{"south west corner", -90, -180, 4, "0000"},
		{"north east corner", 90, 180, 4, "zzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.lat, tt.lng, tt.precision)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, tt.precision)
		})
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	_, err := Encode(90.1, 0, 6)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = Encode(0, -180.5, 6)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = Encode(math.NaN(), 0, 6)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = Encode(10, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestDecodeContainsEncodedPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		lat := rng.Float64()*180 - 90
		lng := rng.Float64()*360 - 180
		p := 1 + rng.Intn(12)

		h, err := Encode(lat, lng, p)
		require.NoError(t, err)

		box, err := Decode(h)
		require.NoError(t, err)
		assert.True(t, box.Contains(lat, lng), "hash %s box %+v does not contain (%v, %v)", h, box, lat, lng)
	}
}

func TestDecodeShrinksWithPrecision(t *testing.T) {
	coarse, err := Decode("tdr1")
	require.NoError(t, err)
	fine, err := Decode("tdr1v9")
	require.NoError(t, err)

	assert.Less(t, fine.MaxLat-fine.MinLat, coarse.MaxLat-coarse.MinLat)
	assert.True(t, coarse.Contains(fine.Center()))
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode("")
	assert.ErrorIs(t, err, ErrInvalidPrecision)

	_, err = Decode("tdra") // 'a' is not in the alphabet
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestDecodeUpperCase(t *testing.T) {
	lower, err := Decode("tdr1v9")
	require.NoError(t, err)
	upper, err := Decode("TDR1V9")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
}

func TestPrefixAndValid(t *testing.T) {
	assert.Equal(t, "tdr1", Prefix("tdr1v9", 4))
	assert.Equal(t, "td", Prefix("td", 4))
	assert.True(t, Valid("tdr1"))
	assert.False(t, Valid("tdr1a"))
	assert.False(t, Valid(""))
}
