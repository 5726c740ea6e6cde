package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	t.Run("same point", func(t *testing.T) {
		p := Coordinates{Lat: 55.611087, Lng: 37.20829}
		assert.Zero(t, Distance(p, p))
	})

	t.Run("one degree of longitude on the equator", func(t *testing.T) {
		d := Distance(Coordinates{Lat: 0, Lng: 0}, Coordinates{Lat: 0, Lng: 1})
		assert.InDelta(t, EarthRadius*3.141592653589793/180, d, 1e-6)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Coordinates{Lat: 55.595884, Lng: 37.209755}
		b := Coordinates{Lat: 55.632761, Lng: 37.333324}
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
		assert.Greater(t, Distance(a, b), 8000.0)
		assert.Less(t, Distance(a, b), 9000.0)
	})
}
