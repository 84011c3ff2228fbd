// Package manager is the caller-facing layer over the engine. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, the cached model (engine.ModelProvider), getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound).
//   - admission.go: bounded queue plus a single in-flight generation.
//   - generate.go: structured generation with NDJSON preview streaming.
//   - raw.go: free-text completion through an InferenceAdapter.
//   - stop.go: Stop and MemoryPressure.
//   - status.go, sanity.go: reporting.
//   - metrics.go: Prometheus generation collectors.
//
// Build tags and runtimes:
//
//   - The engine adapter (default) runs free text on the native backend
//     selected by the 'llamacpp' tag in package backend.
//   - go-llama.cpp adapter: enabled with `-tags=llama`.
//     Files: adapter_llama.go, llama_cgo.go (linker rpath hints).
//     A no-CGO stub exists when the tag is not set: adapter_llama_stub.go.
//
// Exactly one request runs at a time; the Control of that request is the one
// Stop and MemoryPressure reach.
package manager
