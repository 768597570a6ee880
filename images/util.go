package images

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"gocv.io/x/gocv"
)

// Checksum returns a deterministic digest of a Mat's dimensions and pixels.
// Two Mats with equal checksums hold identical pixel data, which is how the
// augmentation tests verify reproducibility under a fixed seed.
//
// Arguments:
// - mat: The Mat to hash. Non-continuous views (regions) are supported.
//
// Returns:
// - A hex-encoded MD5 checksum string, or "empty" for an empty Mat.
//
// Example:
//
// ```go
//
//	a, _, _ := augment.RandomPerspective(rand.New(rand.NewPCG(1, 2)), img, nil, params)
//	b, _, _ := augment.RandomPerspective(rand.New(rand.NewPCG(1, 2)), img, nil, params)
//	same := Checksum(a) == Checksum(b)
//
// ```
func Checksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	src := mat
	if !mat.IsContinuous() {
		src = mat.Clone()
		defer src.Close()
	}

	hash := md5.New()
	var dims [12]byte
	binary.LittleEndian.PutUint32(dims[0:], uint32(src.Rows()))
	binary.LittleEndian.PutUint32(dims[4:], uint32(src.Cols()))
	binary.LittleEndian.PutUint32(dims[8:], uint32(src.Channels()))
	hash.Write(dims[:])
	hash.Write(src.ToBytes())
	return fmt.Sprintf("%x", hash.Sum(nil))
}
