//go:build !linux && !darwin

package device

// totalMemoryMB is unknown on this platform; the sizing policy then falls
// back to the lowest acceleration tier.
func totalMemoryMB() int64 { return 0 }
