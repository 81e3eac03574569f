// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound       Code = "NOT_FOUND"
	CodeEntityNotFound Code = "ENTITY_NOT_FOUND"
	CodeOutputNotFound Code = "OUTPUT_NOT_FOUND"

	// Request errors
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeEventActionMalformed Code = "EVENT_ACTION_MALFORMED"

	// Resource errors
	CodeAllocationExhausted Code = "ALLOCATION_EXHAUSTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument,
		CodeEventActionMalformed:
		return codes.InvalidArgument

	case CodeNotFound,
		CodeEntityNotFound,
		CodeOutputNotFound:
		return codes.NotFound

	case CodeAllocationExhausted:
		return codes.ResourceExhausted

	default:
		return codes.Internal
	}
}
