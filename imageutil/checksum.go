package imageutil

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// MatChecksum returns a deterministic hex-encoded MD5 digest of a Mat's raw
// pixel buffer. It is used by the engine's determinism test to confirm that
// two runs of the rectify/gray/enhance pipeline over identical inputs
// produced byte-for-byte identical frames, without comparing raw buffers.
func MatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	data, _ := mat.DataPtrUint8()
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}
