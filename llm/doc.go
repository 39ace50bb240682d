// Package llm defines the generation/classification provider contract the
// orchestration core consumes, plus a resilience wrapper adding per-call
// timeouts, bounded retry with exponential backoff, and rate-limit
// backpressure at the call site.
package llm
