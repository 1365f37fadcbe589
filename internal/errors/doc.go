// Package errors defines error types for the language server transport.
//
// This package provides structured error types for each failure class of the
// transport: spawn failures (fatal to Start), framing failures (fatal to the
// reader), writer failures (fatal to the writer), and recovered worker panics.
// All error types support error unwrapping and can be checked using errors.Is,
// errors.As, and errors.AsType.
package errors
