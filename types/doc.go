// Package types provides the core types shared across convodesk.
// This package has ZERO dependencies on other convodesk packages to avoid
// circular imports. All other packages should import types from here.
//
// Core types:
//
//   - Message: a single dialog message with sender role and, for agent
//     messages, the attributed handler name
//   - Capability: a registered handler with skills and availability
//   - TurnResult: the immutable outcome of one processed turn
//   - Summary: the single compacted-history record of a dialog
//   - Error and ErrorCode: structured error taxonomy with HTTP status and
//     retryability markers
package types
