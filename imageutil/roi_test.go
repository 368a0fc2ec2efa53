package imageutil

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newGrayMat(t *testing.T, w, h int) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.Scalar{Val1: 100})
	return m
}

func TestExtractROICenteredWindowFitsEntirely(t *testing.T) {
	img := newGrayMat(t, 200, 200)
	defer img.Close()

	roi, ok, err := ExtractROI(img, image.Pt(100, 100), image.Pt(40, 40))
	require.NoError(t, err)
	require.True(t, ok)
	defer roi.Close()

	assert.Equal(t, 40, roi.Mat.Cols())
	assert.Equal(t, 40, roi.Mat.Rows())
	assert.Equal(t, image.Pt(80, 80), roi.Offset)
}

func TestExtractROIClipsAtImageBoundary(t *testing.T) {
	img := newGrayMat(t, 200, 200)
	defer img.Close()

	// Window centred at the top-left corner extends 30px past both edges;
	// the result must clip to the image bounds rather than pad.
	roi, ok, err := ExtractROI(img, image.Pt(0, 0), image.Pt(60, 60))
	require.NoError(t, err)
	require.True(t, ok)
	defer roi.Close()

	assert.Equal(t, 30, roi.Mat.Cols())
	assert.Equal(t, 30, roi.Mat.Rows())
	assert.Equal(t, image.Pt(0, 0), roi.Offset)
}

func TestExtractROIClipsAtFarBoundary(t *testing.T) {
	img := newGrayMat(t, 200, 200)
	defer img.Close()

	roi, ok, err := ExtractROI(img, image.Pt(199, 199), image.Pt(60, 60))
	require.NoError(t, err)
	require.True(t, ok)
	defer roi.Close()

	assert.Equal(t, 31, roi.Mat.Cols())
	assert.Equal(t, 31, roi.Mat.Rows())
	assert.Equal(t, image.Pt(169, 169), roi.Offset)
}

func TestExtractROIReportsFalseWhenFullyOutside(t *testing.T) {
	img := newGrayMat(t, 200, 200)
	defer img.Close()

	roi, ok, err := ExtractROI(img, image.Pt(-500, -500), image.Pt(40, 40))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, roi.Mat.Empty())
}

func TestExtractROIRejectsEmptyImage(t *testing.T) {
	empty := gocv.Mat{}
	_, _, err := ExtractROI(empty, image.Pt(0, 0), image.Pt(10, 10))
	assert.Error(t, err)
}

func TestExtractROIRejectsNonPositiveSize(t *testing.T) {
	img := newGrayMat(t, 50, 50)
	defer img.Close()

	_, _, err := ExtractROI(img, image.Pt(25, 25), image.Pt(0, 10))
	assert.Error(t, err)
}

func TestROICloseReleasesMat(t *testing.T) {
	img := newGrayMat(t, 50, 50)
	defer img.Close()

	roi, ok, err := ExtractROI(img, image.Pt(25, 25), image.Pt(10, 10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, roi.Close())
}
