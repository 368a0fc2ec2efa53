package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/alignpress/engine/config"
)

func TestSearchFindsExactPlacementAtIdentityHypothesis(t *testing.T) {
	templ := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8U)
	defer templ.Close()
	for r := 0; r < 20; r++ {
		for c := 0; c < 20; c++ {
			templ.SetUCharAt(r, c, uint8((r*13+c*7)%256))
		}
	}

	roi := gocv.NewMatWithSize(60, 60, gocv.MatTypeCV8U)
	defer roi.Close()
	region := roi.Region(gocv.NewRect(20, 20, 20, 20))
	templ.CopyTo(&region)
	region.Close()

	emptyMask := gocv.NewMat()
	defer emptyMask.Close()

	params := config.FallbackParams{
		Scales:         []float64{1.0},
		AnglesDeg:      []float64{0},
		MatchThreshold: 0.8,
	}

	result, err := Search(roi, templ, emptyMask, 0, params)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.InDelta(t, 0.0, result.AngleDeg, 1e-6)
	assert.Greater(t, result.Confidence, 0.8)
}

func TestSearchReportsNotFoundBelowThreshold(t *testing.T) {
	templ := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8U)
	defer templ.Close()
	for r := 0; r < 20; r++ {
		for c := 0; c < 20; c++ {
			templ.SetUCharAt(r, c, uint8((r*13+c*7)%256))
		}
	}

	roi := gocv.NewMatWithSize(60, 60, gocv.MatTypeCV8U)
	defer roi.Close()
	// left all zeros: templ is never copied into roi

	emptyMask := gocv.NewMat()
	defer emptyMask.Close()

	params := config.FallbackParams{
		Scales:         []float64{1.0},
		AnglesDeg:      []float64{0},
		MatchThreshold: 0.99,
	}

	result, err := Search(roi, templ, emptyMask, 0, params)
	require.NoError(t, err)
	assert.False(t, result.Found)
}
