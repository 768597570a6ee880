package images

import (
	"runtime"
	"sync"
)

// Clamp restricts a value to the range [lo, hi].
//
// Arguments:
// - value: The value to clamp.
// - lo: Minimum allowed value.
// - hi: Maximum allowed value.
//
// Returns:
// - The clamped value within [lo, hi].
//
// @example
// clamped := Clamp(300.5, 0, 255) // Returns 255
func Clamp[T ~float32 | ~float64 | ~int](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Parallel splits [0, dataSize) into contiguous partitions and runs fn on each
// partition in its own goroutine. Small inputs run serially on the caller's
// goroutine.
//
// Arguments:
// - dataSize: The number of elements (rows, pixels) to process.
// - fn: Function to execute for each partition (receives start and end indices).
//
// @example
//
//	Parallel(rows, func(start, end int) {
//	    for y := start; y < end; y++ {
//	        // Process row y
//	    }
//	})
func Parallel(dataSize int, fn func(partStart, partEnd int)) {
	numGoroutines := runtime.NumCPU()

	if dataSize < numGoroutines*2 {
		fn(0, dataSize)
		return
	}

	partSize := dataSize / numGoroutines

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		partStart := i * partSize
		partEnd := partStart + partSize

		// Last partition gets any remaining data.
		if i == numGoroutines-1 {
			partEnd = dataSize
		}

		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(partStart, partEnd)
	}

	wg.Wait()
}
