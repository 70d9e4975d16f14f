package points

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/recycle-points/internal/material"
)

func ric(v int) *int { return &v }

func TestCalculatePlasticRIC1(t *testing.T) {
	// 10 * 1.2 * 0.85 = 10.2
	assert.Equal(t, int64(10), Calculate(material.Plastic, ric(1), 85))
}

func TestCalculateUnknownIsZero(t *testing.T) {
	for _, conf := range []int{0, 50, 100} {
		assert.Equal(t, int64(0), Calculate(material.Unknown, nil, conf))
		assert.Equal(t, int64(0), Calculate(material.Unknown, ric(1), conf))
	}
	assert.Equal(t, int64(0), Calculate(material.Type("wood"), nil, 100))
}

func TestCalculateFloorForKnownMaterials(t *testing.T) {
	for _, m := range material.Canonical {
		if !m.Known() {
			continue
		}
		for code := 0; code <= 8; code++ {
			var r *int
			if code > 0 {
				r = ric(code)
			}
			for conf := 0; conf <= 100; conf += 5 {
				got := Calculate(m, r, conf)
				require.GreaterOrEqualf(t, got, int64(1), "material=%s ric=%d conf=%d", m, code, conf)
			}
		}
	}
}

func TestCalculateConfidenceFloorMultiplier(t *testing.T) {
	// Confidence 0 and 30 both use the 0.3 floor: 20 * 0.3 = 6.
	assert.Equal(t, int64(6), Calculate(material.Aluminum, nil, 0))
	assert.Equal(t, int64(6), Calculate(material.Aluminum, nil, 30))
	assert.Equal(t, int64(20), Calculate(material.Aluminum, nil, 100))
}

func TestCalculateClampsConfidence(t *testing.T) {
	assert.Equal(t, Calculate(material.Glass, nil, 100), Calculate(material.Glass, nil, 250))
	assert.Equal(t, Calculate(material.Glass, nil, 0), Calculate(material.Glass, nil, -40))
}

func TestCalculateIsDeterministic(t *testing.T) {
	first := Calculate(material.Metal, ric(5), 73)
	for i := 0; i < 1000; i++ {
		require.Equal(t, first, Calculate(material.Metal, ric(5), 73))
	}
}

func TestRICMultiplierOrdering(t *testing.T) {
	assert.Equal(t, 1.0, RICMultiplier(nil))
	assert.Equal(t, 1.0, RICMultiplier(ric(0)))
	assert.Equal(t, 1.0, RICMultiplier(ric(8)))

	for code := 2; code <= 7; code++ {
		assert.Greater(t, RICMultiplier(ric(1)), RICMultiplier(ric(code)))
		assert.Less(t, RICMultiplier(ric(7)), RICMultiplier(ric(code-1)))
	}
}

func TestForClassification(t *testing.T) {
	c := material.Classification{Type: material.Cardboard, Confidence: 100}
	assert.Equal(t, int64(8), ForClassification(c))
}
