package imageutil

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// syntheticAlpha builds a single-channel alpha plane that is opaque (255) in
// a centred square block and transparent (0) everywhere else, the shape a
// logo silhouette with a clean alpha cutout would have.
func syntheticAlpha(t *testing.T, size, blockMargin int) gocv.Mat {
	t.Helper()
	alpha := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC1)
	block := alpha.Region(image.Rect(blockMargin, blockMargin, size-blockMargin, size-blockMargin))
	block.SetTo(gocv.Scalar{Val1: 255})
	block.Close()
	return alpha
}

func TestAlphaChannelExtractsFourthPlane(t *testing.T) {
	bgra := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8UC4)
	defer bgra.Close()
	bgra.SetTo(gocv.Scalar{Val1: 10, Val2: 20, Val3: 30, Val4: 200})

	alpha, ok, err := AlphaChannel(bgra)
	require.NoError(t, err)
	require.True(t, ok)
	defer alpha.Close()

	assert.Equal(t, 1, alpha.Channels())
	assert.Equal(t, 200, int(alpha.GetUCharAt(0, 0)))
}

func TestAlphaChannelReportsFalseWithoutAlpha(t *testing.T) {
	bgr := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8UC3)
	defer bgr.Close()

	alpha, ok, err := AlphaChannel(bgr)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, alpha.Empty())
}

func TestDeriveMaskThresholdBinarisesAtMidpoint(t *testing.T) {
	alpha := syntheticAlpha(t, 40, 10)
	defer alpha.Close()

	mask, err := DeriveMask(MethodThreshold, alpha, gocv.Mat{})
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, 255, int(mask.GetUCharAt(20, 20))) // inside the opaque block
	assert.Equal(t, 0, int(mask.GetUCharAt(1, 1)))      // outside, transparent corner
}

func TestDeriveMaskDefaultsToThresholdForEmptyMethod(t *testing.T) {
	alpha := syntheticAlpha(t, 40, 10)
	defer alpha.Close()

	mask, err := DeriveMask("", alpha, gocv.Mat{})
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, 255, int(mask.GetUCharAt(20, 20)))
}

func TestDeriveMaskContourFillsSolid(t *testing.T) {
	alpha := syntheticAlpha(t, 40, 10)
	defer alpha.Close()

	mask, err := DeriveMask(MethodContour, alpha, gocv.Mat{})
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, 40, mask.Rows())
	assert.Equal(t, 40, mask.Cols())
	assert.Equal(t, 255, int(mask.GetUCharAt(20, 20)))
	assert.Equal(t, 0, int(mask.GetUCharAt(1, 1)))
}

func TestDeriveMaskGrabCutSeededByAlphaHint(t *testing.T) {
	alpha := syntheticAlpha(t, 60, 15)
	defer alpha.Close()

	gray := gocv.NewMatWithSize(60, 60, gocv.MatTypeCV8UC1)
	defer gray.Close()
	gray.SetTo(gocv.Scalar{Val1: 80})
	block := gray.Region(image.Rect(15, 15, 45, 45))
	block.SetTo(gocv.Scalar{Val1: 220})
	block.Close()

	mask, err := DeriveMask(MethodGrabCut, alpha, gray)
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, 60, mask.Rows())
	assert.Equal(t, 60, mask.Cols())
}

func TestDeriveMaskGrabCutRequiresGrayReference(t *testing.T) {
	alpha := syntheticAlpha(t, 40, 10)
	defer alpha.Close()

	_, err := DeriveMask(MethodGrabCut, alpha, gocv.Mat{})
	assert.Error(t, err)
}

func TestDeriveMaskRejectsEmptyAlpha(t *testing.T) {
	_, err := DeriveMask(MethodThreshold, gocv.Mat{}, gocv.Mat{})
	assert.Error(t, err)
}

func TestDeriveMaskRejectsUnknownMethod(t *testing.T) {
	alpha := syntheticAlpha(t, 40, 10)
	defer alpha.Close()

	_, err := DeriveMask("not-a-real-method", alpha, gocv.Mat{})
	assert.Error(t, err)
}
