// bytes.go - Umwandlung zwischen typisierten Slices und Roh-Bytes (ohne Kopie)
package ml

import "unsafe"

// Float32Bytes reinterprets s as its row-major byte representation.
func Float32Bytes(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

// BytesFloat32 reinterprets b as float32 values. len(b) must be a multiple
// of four; trailing bytes are ignored.
func BytesFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
