// Package engine drives grammar-constrained generation against a native
// backend. It is structured into small files by concern:
//
//   - errors.go: error kinds and Is* helpers.
//   - sizing.go: SizingPolicy, pure mapping from prompt size and device
//     capability to context length and offload tier.
//   - model.go, session.go: native handle ownership; Session.ForceStop frees
//     everything exactly once and turns later calls into no-ops.
//   - loop.go, utf8.go: the per-token decode loop and UTF-8 carry buffer.
//   - preview.go: best-effort progress lines from an incomplete JSON buffer.
//   - schema.go, prompts.go: the step document wire format and prompt variants.
//   - orchestrator.go: validation and bounded retry across prompt variants,
//     local or cloud.
//   - cancel.go: request-scoped cancellation Control.
//
// A Session is owned by exactly one generation request. The only call allowed
// from another goroutine is ForceStop (normally through Control.Stop).
package engine
