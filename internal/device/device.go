// Package device reports the memory and acceleration capability of the host.
// The sizing policy consumes a Capability; it never probes hardware itself.
package device

import (
	"runtime"
	"strings"

	"structd/internal/backend"
)

// Capability is a snapshot of what the host can offer a session.
type Capability struct {
	// MemoryMB is total physical memory. Zero means unknown.
	MemoryMB int64
	// Accelerated is true when the backend can offload layers.
	Accelerated bool
	// Unified is true for unified-memory architectures (Apple silicon),
	// which tolerate full offload.
	Unified bool
	Name    string
}

// Overrides pins individual fields instead of probing them. Nil fields are
// probed.
type Overrides struct {
	MemoryMB    *int64
	Accelerated *bool
	Unified     *bool
}

// Probe combines OS memory information with the backend's accelerator report.
func Probe(acc backend.Accelerator, o Overrides) Capability {
	c := Capability{
		MemoryMB:    totalMemoryMB(),
		Accelerated: acc.Available,
		Name:        acc.Name,
	}
	c.Unified = c.Accelerated && isUnified(runtime.GOOS, runtime.GOARCH, acc.Name)
	if o.MemoryMB != nil {
		c.MemoryMB = *o.MemoryMB
	}
	if o.Accelerated != nil {
		c.Accelerated = *o.Accelerated
	}
	if o.Unified != nil {
		c.Unified = *o.Unified
	}
	return c
}

func isUnified(goos, goarch, name string) bool {
	if goos == "darwin" && goarch == "arm64" {
		return true
	}
	n := strings.ToLower(name)
	return strings.Contains(n, "apple") || strings.Contains(n, "metal")
}
