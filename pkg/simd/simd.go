package simd

import (
	"runtime"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sys/cpu"
)

// Implementation represents the active SIMD implementation
type Implementation string

const (
	// ImplGeneric indicates pure Go fallback (no SIMD)
	ImplGeneric Implementation = "generic"
	// ImplAVX2 indicates x86 AVX2+FMA SIMD
	ImplAVX2 Implementation = "avx2"
)

// RuntimeInfo contains information about the active SIMD implementation
type RuntimeInfo struct {
	// Implementation is the active SIMD backend
	Implementation Implementation
	// Features lists specific CPU features being used
	Features []string
	// Accelerated indicates whether SIMD acceleration is active
	Accelerated bool
}

// Sum returns the sum of v, or 0 for an empty vector.
func Sum(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Sum(v)
}

// Max returns the largest element of v, or 0 for an empty vector.
func Max(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Max(v)
}

// Min returns the smallest element of v, or 0 for an empty vector.
func Min(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Min(v)
}

// Mean returns the arithmetic mean of v, or 0 for an empty vector.
func Mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Mean(v)
}

// ScaleInPlace multiplies every element of v by s.
func ScaleInPlace(v []float32, s float32) {
	if len(v) == 0 {
		return
	}
	vek32.MulNumber_Inplace(v, s)
}

// Zero sets every element of v to 0.
func Zero(v []float32) {
	clear(v)
}

// Info returns information about the active SIMD implementation.
//
// Example:
//
//	info := simd.Info()
//	if info.Accelerated {
//	    fmt.Printf("Using %s SIMD\n", info.Implementation)
//	}
func Info() RuntimeInfo {
	info := vek32.Info()
	impl := ImplGeneric
	if runtime.GOARCH == "amd64" && cpu.X86.HasAVX2 && cpu.X86.HasFMA && info.Acceleration {
		impl = ImplAVX2
	}
	return RuntimeInfo{
		Implementation: impl,
		Features:       info.CPUFeatures,
		Accelerated:    info.Acceleration,
	}
}
