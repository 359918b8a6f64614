// Package simd provides vectorized float32 helpers for the learning engine.
//
// The recall normalizer touches one value per LED per sweep; on large
// installations that is tens of thousands of values several times a second.
// These helpers delegate to github.com/viterin/vek, which uses AVX2 on amd64
// when the CPU supports it and tuned pure Go elsewhere.
//
// # Usage
//
//	import "github.com/orneryd/vismem/pkg/simd"
//
//	total := simd.Sum(acc)
//	if total != 0 {
//		simd.ScaleInPlace(acc, float32(len(acc))/total)
//	}
package simd
